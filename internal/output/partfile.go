package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

// PartFile appends filtered rows to <path>.part and moves it to path on
// Commit. An existing path is therefore always a complete file.
type PartFile struct {
	path string
	file *os.File
	csv  *csv.Writer
	rows int
}

// CreatePartFile starts a new part file and writes the header.
func CreatePartFile(path string, header []string) (*PartFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	f, err := os.Create(path + ".part")
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	p := &PartFile{path: path, file: f, csv: csv.NewWriter(f)}
	if err := p.csv.Write(header); err != nil {
		p.Abort()
		return nil, fmt.Errorf("output: write header: %w", err)
	}
	return p, nil
}

// Append writes the original values of the tagged records.
func (p *PartFile) Append(recs []models.TaggedRecord) error {
	for _, rec := range recs {
		if err := p.csv.Write(rec.Record.Values); err != nil {
			return fmt.Errorf("output: %w", err)
		}
	}
	p.rows += len(recs)
	return nil
}

// Rows returns the number of rows appended.
func (p *PartFile) Rows() int {
	return p.rows
}

// Commit flushes the part file and renames it onto the final path.
func (p *PartFile) Commit() error {
	p.csv.Flush()
	if err := p.csv.Error(); err != nil {
		p.Abort()
		return fmt.Errorf("output: flush %s: %w", p.path, err)
	}
	if err := p.file.Close(); err != nil {
		os.Remove(p.file.Name())
		return fmt.Errorf("output: %w", err)
	}
	if err := os.Rename(p.file.Name(), p.path); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}

// Abort discards the part file.
func (p *PartFile) Abort() {
	p.file.Close()
	os.Remove(p.file.Name())
}
