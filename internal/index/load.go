package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kamusis/addonrepo/internal/checksum"
)

// Catalog is a published index loaded back from disk and verified against
// its checksum record.
type Catalog struct {
	Dir        string
	Document   []byte
	Record     Record
	RecordJSON []byte
	MD5        []byte // nil when no MD5 companion was published
	Entries    []Entry

	byID map[string]int
}

// Load reads the artifacts in dir. The document must match the recorded
// index checksum and every entry's checksum must match the record.
func Load(dir string) (*Catalog, error) {
	docPath := filepath.Join(dir, IndexFile)
	doc, err := os.ReadFile(docPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read index %s: %w", docPath, err)
	}
	recPath := filepath.Join(dir, RecordFile)
	recJSON, err := os.ReadFile(recPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read checksum record %s: %w", recPath, err)
	}
	var rec Record
	if err := json.Unmarshal(recJSON, &rec); err != nil {
		return nil, fmt.Errorf("invalid checksum record JSON %s: %w", recPath, err)
	}
	if rec.Algorithm != checksum.Algorithm {
		return nil, fmt.Errorf("checksum record %s: unsupported algorithm %q", recPath, rec.Algorithm)
	}

	name := rec.IndexFile
	if name == "" {
		name = IndexFile
	}
	if got := checksum.SumBytes(name, doc).Hex(); got != rec.IndexChecksum {
		return nil, fmt.Errorf("%w: %s is %s, record says %s", ErrChecksumMismatch, docPath, got, rec.IndexChecksum)
	}

	entries, err := Parse(doc)
	if err != nil {
		return nil, err
	}
	if len(entries) != len(rec.Addons) {
		return nil, fmt.Errorf("%w: index lists %d addons, record %d", ErrChecksumMismatch, len(entries), len(rec.Addons))
	}
	byID := make(map[string]int, len(entries))
	for i, e := range entries {
		if rec.Addons[e.ID] != e.Checksum {
			return nil, fmt.Errorf("%w: addon %s", ErrChecksumMismatch, e.ID)
		}
		byID[e.ID] = i
	}

	md5Data, err := os.ReadFile(filepath.Join(dir, MD5File))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("cannot read %s: %w", MD5File, err)
	}

	return &Catalog{
		Dir:        dir,
		Document:   doc,
		Record:     rec,
		RecordJSON: recJSON,
		MD5:        md5Data,
		Entries:    entries,
		byID:       byID,
	}, nil
}

// Lookup returns the entry for id.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.Entries[i], true
}

// IDs returns the addon ids in index order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = e.ID
	}
	return out
}
