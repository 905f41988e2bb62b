package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kamusis/addonrepo/internal/manifest"
)

const idsQuery = "/addons/addon/@id"

// IDs returns the addon ids listed in an index document, in document order.
func IDs(doc []byte) ([]string, error) {
	d, err := manifest.ParseBytes(doc, IndexFile)
	if err != nil {
		return nil, err
	}
	return d.Values(idsQuery)
}

// Parse reads the entries of an index document.
func Parse(doc []byte) ([]Entry, error) {
	d, err := manifest.ParseBytes(doc, IndexFile)
	if err != nil {
		return nil, err
	}
	if root := d.Root(); root != "addons" {
		return nil, &manifest.MalformedManifestError{
			Path: IndexFile,
			Err:  fmt.Errorf("root element is <%s>, want <addons>", root),
		}
	}
	nodes, err := d.Nodes("/addons/addon")
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		e := Entry{}
		e.ID, _ = n.Attr("id")
		e.Version, _ = n.Attr("version")
		e.Name, _ = n.Attr("name")
		e.Provider, _ = n.Attr("provider-name")
		if e.ID == "" {
			return nil, &manifest.MissingFieldError{Field: "id", Path: IndexFile}
		}

		imports, err := n.Nodes("requires/import")
		if err != nil {
			return nil, err
		}
		for _, imp := range imports {
			dep := EntryDependency{}
			dep.ID, _ = imp.Attr("addon")
			dep.Constraint, _ = imp.Attr("version")
			if v, ok := imp.Attr("optional"); ok {
				dep.Optional, _ = strconv.ParseBool(v)
			}
			e.Dependencies = append(e.Dependencies, dep)
		}

		if e.ExtensionPoints, err = n.Values("extension/@point"); err != nil {
			return nil, err
		}
		if len(e.ExtensionPoints) == 0 {
			e.ExtensionPoints = nil
		}
		sums, err := n.Values("checksum")
		if err != nil {
			return nil, err
		}
		if len(sums) > 0 {
			e.Checksum = strings.TrimSpace(sums[0])
		}
		out = append(out, e)
	}
	return out, nil
}
