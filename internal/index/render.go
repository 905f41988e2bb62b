// Package index serializes descriptor sets into a repository index, and
// builds, publishes and loads index artifacts.
package index

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/kamusis/addonrepo/internal/addon"
	"github.com/kamusis/addonrepo/internal/checksum"
)

const header = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

// Artifacts are the serialized outputs of one build. Nothing is written to
// storage until Publish.
type Artifacts struct {
	Document   []byte
	Checksum   checksum.Digest
	Record     Record
	RecordJSON []byte
	MD5        []byte
	Entries    []Entry
}

// Render serializes descriptors, which must be strictly ascending by id.
// Output depends only on the descriptors, so identical input yields
// byte-identical artifacts.
func Render(descriptors []addon.Descriptor) (*Artifacts, error) {
	doc := xmlIndex{Addons: make([]xmlAddon, 0, len(descriptors))}
	entries := make([]Entry, 0, len(descriptors))
	addons := make(map[string]string, len(descriptors))
	for i, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("descriptor %d (%s) has an empty id", i, d.SourcePath)
		}
		if i > 0 && descriptors[i-1].ID >= d.ID {
			return nil, fmt.Errorf("%w: %q then %q", ErrUnsorted, descriptors[i-1].ID, d.ID)
		}
		e := EntryOf(d)
		entries = append(entries, e)
		doc.Addons = append(doc.Addons, toXML(e, checksum.Algorithm))
		addons[e.ID] = e.Checksum
	}

	var buf bytes.Buffer
	buf.WriteString(header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	buf.WriteByte('\n')
	document := buf.Bytes()

	sum := checksum.SumBytes(IndexFile, document)
	rec := Record{
		Version:       recordVersion,
		Algorithm:     checksum.Algorithm,
		IndexFile:     IndexFile,
		IndexChecksum: sum.Hex(),
		Addons:        addons,
	}
	recJSON, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode checksum record: %w", err)
	}
	recJSON = append(recJSON, '\n')

	m := md5.Sum(document)
	return &Artifacts{
		Document:   document,
		Checksum:   sum,
		Record:     rec,
		RecordJSON: recJSON,
		MD5:        []byte(hex.EncodeToString(m[:])),
		Entries:    entries,
	}, nil
}
