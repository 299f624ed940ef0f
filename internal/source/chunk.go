package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

// DefaultChunkSize is the number of rows handed out per chunk.
const DefaultChunkSize = 100000

// ErrEmptyTable is returned when a source has no header row.
var ErrEmptyTable = errors.New("source: table has no header")

// ChunkReader streams a CSV table in fixed-size chunks of records. Only one
// chunk is held in memory at a time.
type ChunkReader struct {
	reader *csv.Reader
	header []string
	size   int
	rows   int
	done   bool
}

// NewChunkReader reads the header from r and prepares chunked reads.
func NewChunkReader(r io.Reader, size int) (*ChunkReader, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("source: read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	return &ChunkReader{
		reader: reader,
		header: header,
		size:   size,
	}, nil
}

// Header returns the table header.
func (c *ChunkReader) Header() []string {
	return c.header
}

// Rows returns the number of data rows read so far.
func (c *ChunkReader) Rows() int {
	return c.rows
}

// Next returns the next chunk. It returns io.EOF once the table is
// exhausted; a short final chunk is returned with a nil error.
func (c *ChunkReader) Next() ([]models.RawRecord, error) {
	if c.done {
		return nil, io.EOF
	}

	chunk := make([]models.RawRecord, 0, min(c.size, 4096))
	for len(chunk) < c.size {
		values, err := c.reader.Read()
		if errors.Is(err, io.EOF) {
			c.done = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("source: read row %d: %w", c.rows+1, err)
		}
		c.rows++
		chunk = append(chunk, models.RawRecord{Header: c.header, Values: values})
	}

	if len(chunk) == 0 {
		return nil, io.EOF
	}
	return chunk, nil
}
