package index

import (
	"encoding/xml"
	"strconv"

	"github.com/kamusis/addonrepo/internal/addon"
)

// Published artifact names.
const (
	IndexFile  = "addons.xml"
	MD5File    = "addons.xml.md5"
	RecordFile = "addons.checksums.json"
)

const recordVersion = 1

// Record is the index checksum record written next to the index document.
type Record struct {
	Version       int               `json:"version"`
	Algorithm     string            `json:"algorithm"`
	IndexFile     string            `json:"index_file"`
	IndexChecksum string            `json:"index_checksum"`
	Addons        map[string]string `json:"addons"`
}

// Entry is one addon as it appears in an index document.
type Entry struct {
	ID              string            `json:"id"`
	Version         string            `json:"version"`
	Name            string            `json:"name,omitempty"`
	Provider        string            `json:"provider,omitempty"`
	Dependencies    []EntryDependency `json:"dependencies,omitempty"`
	ExtensionPoints []string          `json:"extension_points,omitempty"`
	Checksum        string            `json:"checksum"`
}

// EntryDependency is one import of an Entry. Constraint is verbatim.
type EntryDependency struct {
	ID         string `json:"id"`
	Constraint string `json:"constraint,omitempty"`
	Optional   bool   `json:"optional,omitempty"`
}

// ArchiveName is the archive file name clients request for e.
func (e Entry) ArchiveName() string {
	return e.ID + "-" + e.Version + ".zip"
}

// EntryOf returns the index entry rendered for d.
func EntryOf(d addon.Descriptor) Entry {
	e := Entry{
		ID:              d.ID,
		Version:         d.Version.String(),
		Name:            d.Name,
		Provider:        d.Provider,
		ExtensionPoints: append([]string(nil), d.ExtensionPoints...),
		Checksum:        d.Checksum.Hex(),
	}
	for _, dep := range d.Dependencies {
		e.Dependencies = append(e.Dependencies, EntryDependency{
			ID:         dep.ID,
			Constraint: dep.Constraint.Raw,
			Optional:   dep.Optional,
		})
	}
	return e
}

// XML shapes of the index document. Field order is the element layout.
type (
	xmlIndex struct {
		XMLName xml.Name   `xml:"addons"`
		Addons  []xmlAddon `xml:"addon"`
	}

	xmlAddon struct {
		ID         string         `xml:"id,attr"`
		Version    string         `xml:"version,attr"`
		Name       string         `xml:"name,attr,omitempty"`
		Provider   string         `xml:"provider-name,attr,omitempty"`
		Requires   *xmlRequires   `xml:"requires,omitempty"`
		Extensions []xmlExtension `xml:"extension"`
		Checksum   xmlChecksum    `xml:"checksum"`
	}

	xmlRequires struct {
		Imports []xmlImport `xml:"import"`
	}

	xmlImport struct {
		Addon    string `xml:"addon,attr"`
		Version  string `xml:"version,attr,omitempty"`
		Optional string `xml:"optional,attr,omitempty"`
	}

	xmlExtension struct {
		Point string `xml:"point,attr"`
	}

	xmlChecksum struct {
		Algorithm string `xml:"algorithm,attr"`
		Value     string `xml:",chardata"`
	}
)

func toXML(e Entry, algorithm string) xmlAddon {
	a := xmlAddon{
		ID:       e.ID,
		Version:  e.Version,
		Name:     e.Name,
		Provider: e.Provider,
		Checksum: xmlChecksum{Algorithm: algorithm, Value: e.Checksum},
	}
	if len(e.Dependencies) > 0 {
		a.Requires = &xmlRequires{}
		for _, d := range e.Dependencies {
			imp := xmlImport{Addon: d.ID, Version: d.Constraint}
			if d.Optional {
				imp.Optional = strconv.FormatBool(true)
			}
			a.Requires.Imports = append(a.Requires.Imports, imp)
		}
	}
	for _, p := range e.ExtensionPoints {
		a.Extensions = append(a.Extensions, xmlExtension{Point: p})
	}
	return a
}
