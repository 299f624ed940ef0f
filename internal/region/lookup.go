package region

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/source"
)

// ErrLookupUnavailable means the postcode lookup could not be read. No
// council-level aggregation can run without it.
var ErrLookupUnavailable = errors.New("region: postcode lookup unavailable")

// LookupEntry is the administrative geography of one postcode.
type LookupEntry struct {
	Council  models.RegionCode
	DataZone string
}

// LookupColumns names the lookup columns. Blank names are detected from the
// header.
type LookupColumns struct {
	Postcode string `yaml:"postcode"`
	Council  string `yaml:"council"`
	DataZone string `yaml:"data_zone"`
}

// LookupTable maps whitespace-free postcodes to their geography. It is
// read once and not modified afterwards.
type LookupTable struct {
	entries map[string]LookupEntry
}

// NewLookupTable builds a table from postcode to entry pairs.
func NewLookupTable(entries map[string]LookupEntry) *LookupTable {
	t := &LookupTable{entries: make(map[string]LookupEntry, len(entries))}
	for pc, e := range entries {
		t.entries[LookupKey(pc)] = e
	}
	return t
}

// Get returns the entry for a postcode in any spacing or case.
func (t *LookupTable) Get(postcode string) (LookupEntry, bool) {
	e, ok := t.entries[LookupKey(postcode)]
	return e, ok
}

// Len returns the number of postcodes in the table.
func (t *LookupTable) Len() int {
	return len(t.entries)
}

// LoadLookup reads the lookup CSV at path.
func LoadLookup(path string, cols LookupColumns) (*LookupTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	defer f.Close()

	return ReadLookup(f, cols)
}

// ReadLookup reads a lookup CSV from r.
func ReadLookup(r io.Reader, cols LookupColumns) (*LookupTable, error) {
	reader, err := source.NewChunkReader(r, 50000)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}

	header := reader.Header()
	pcIdx := findColumn(header, cols.Postcode, "postcode")
	councilIdx := findColumn(header, cols.Council, "council", "code")
	zoneIdx := findColumn(header, cols.DataZone, "datazone", "code")
	if pcIdx < 0 || councilIdx < 0 {
		return nil, fmt.Errorf("%w: header %v lacks postcode or council code column", ErrLookupUnavailable, header)
	}

	table := &LookupTable{entries: make(map[string]LookupEntry)}
	for {
		chunk, err := reader.Next()
		for _, rec := range chunk {
			key := LookupKey(rec.At(models.Column{Index: pcIdx}))
			if key == "" {
				continue
			}
			entry := LookupEntry{
				Council: models.RegionCode(strings.ToUpper(strings.TrimSpace(rec.At(models.Column{Index: councilIdx})))),
			}
			if zoneIdx >= 0 {
				entry.DataZone = strings.TrimSpace(rec.At(models.Column{Index: zoneIdx}))
			}
			table.entries[key] = entry
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
		}
	}
	return table, nil
}

// findColumn returns the index of the configured name, or of the first
// header containing every token once spaces are removed.
func findColumn(header []string, configured string, tokens ...string) int {
	if configured != "" {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(configured)) {
				return i
			}
		}
	}
	for i, h := range header {
		squashed := strings.ToLower(strings.ReplaceAll(h, " ", ""))
		all := true
		for _, tok := range tokens {
			if !strings.Contains(squashed, tok) {
				all = false
				break
			}
		}
		if all {
			return i
		}
	}
	return -1
}
