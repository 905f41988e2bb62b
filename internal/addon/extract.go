package addon

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/kamusis/addonrepo/internal/checksum"
	"github.com/kamusis/addonrepo/internal/manifest"
)

// Queries used against addon.xml.
const (
	idQuery        = "/addon/@id"
	versionQuery   = "/addon/@version"
	nameQuery      = "/addon/@name"
	providerQuery  = "/addon/@provider-name"
	importQuery    = "/addon/requires/import"
	extensionQuery = "/addon/extension/@point"
)

// Extractor turns manifest documents into descriptors.
type Extractor struct {
	// Grammar parses dependency constraints. Nil selects KodiGrammar.
	Grammar Grammar
}

// Extract builds a descriptor from doc. sum is the package checksum computed
// by the caller; sourcePath is recorded for the build only.
func (x Extractor) Extract(doc *manifest.Document, sum checksum.Digest, sourcePath string) (Descriptor, error) {
	id, err := doc.Required("id", idQuery)
	if err != nil {
		return Descriptor{}, err
	}
	rawVersion, err := doc.Required("version", versionQuery)
	if err != nil {
		return Descriptor{}, err
	}
	version, err := ParseVersion(rawVersion)
	if err != nil {
		return Descriptor{}, &InvalidVersionError{ID: id, Raw: rawVersion}
	}

	name, _, err := doc.Optional(nameQuery)
	if err != nil {
		return Descriptor{}, err
	}
	provider, _, err := doc.Optional(providerQuery)
	if err != nil {
		return Descriptor{}, err
	}

	deps, err := x.dependencies(doc, id)
	if err != nil {
		return Descriptor{}, err
	}

	points, err := doc.Values(extensionQuery)
	if err != nil {
		return Descriptor{}, err
	}

	return Descriptor{
		ID:              id,
		Name:            name,
		Provider:        provider,
		Version:         version,
		Dependencies:    deps,
		ExtensionPoints: dedupe(points),
		Checksum:        sum,
		SourcePath:      sourcePath,
	}, nil
}

func (x Extractor) dependencies(doc *manifest.Document, addonID string) ([]Dependency, error) {
	grammar := x.Grammar
	if grammar == nil {
		grammar = KodiGrammar{}
	}

	imports, err := doc.Nodes(importQuery)
	if err != nil {
		return nil, err
	}

	var out []Dependency
	seen := make(map[string]bool, len(imports))
	for i, imp := range imports {
		depID, _ := imp.Attr("addon")
		depID = strings.TrimSpace(depID)
		if depID == "" {
			return nil, &MalformedDependencyError{
				Addon:  addonID,
				Reason: fmt.Sprintf("import #%d has no addon attribute", i+1),
			}
		}
		if seen[depID] {
			return nil, &MalformedDependencyError{
				Addon:  addonID,
				Reason: fmt.Sprintf("duplicate import of %s", depID),
			}
		}
		seen[depID] = true

		raw, _ := imp.Attr("version")
		c, err := grammar.Parse(raw)
		if err != nil {
			return nil, &MalformedDependencyError{
				Addon:  addonID,
				Reason: fmt.Sprintf("import %s: %v", depID, err),
			}
		}

		optional := false
		if v, ok := imp.Attr("optional"); ok {
			optional, err = strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, &MalformedDependencyError{
					Addon:  addonID,
					Reason: fmt.Sprintf("import %s: optional=%q is not a boolean", depID, v),
				}
			}
		}

		out = append(out, Dependency{ID: depID, Constraint: c, Optional: optional})
	}
	return out, nil
}

func dedupe(points []string) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
