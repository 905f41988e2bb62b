// Package manifest parses addon manifest markup into a navigable tree and
// answers XPath queries against it.
package manifest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
)

// FileName is the conventional manifest file name inside an addon directory.
const FileName = "addon.xml"

// Document is a parsed manifest. It is never mutated after Parse returns.
type Document struct {
	source string
	root   *xmlquery.Node
}

// Node is a single element matched by Nodes.
type Node struct {
	n *xmlquery.Node
}

// Parse reads markup from r. source identifies the manifest in errors.
func Parse(r io.Reader, source string) (*Document, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, &MalformedManifestError{Path: source, Err: err}
	}
	if err := checkWellFormed(doc); err != nil {
		return nil, &MalformedManifestError{Path: source, Err: err}
	}
	return &Document{source: source, root: doc}, nil
}

// checkWellFormed enforces what the lenient tree builder lets through:
// exactly one document element, no text outside it, and unique attribute
// names on every element.
func checkWellFormed(doc *xmlquery.Node) error {
	roots := 0
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			roots++
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if strings.TrimSpace(c.Data) != "" {
				return fmt.Errorf("text outside the root element: %q", strings.TrimSpace(c.Data))
			}
		}
	}
	switch {
	case roots == 0:
		return errors.New("no root element")
	case roots > 1:
		return fmt.Errorf("%d root elements", roots)
	}
	return checkAttrs(rootElement(doc))
}

func checkAttrs(n *xmlquery.Node) error {
	seen := make(map[xml.Name]bool, len(n.Attr))
	for _, a := range n.Attr {
		if seen[a.Name] {
			return fmt.Errorf("element <%s>: duplicate attribute %q", n.Data, attrName(a.Name))
		}
		seen[a.Name] = true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		if err := checkAttrs(c); err != nil {
			return err
		}
	}
	return nil
}

func attrName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// ParseBytes is Parse over an in-memory manifest.
func ParseBytes(data []byte, source string) (*Document, error) {
	return Parse(bytes.NewReader(data), source)
}

// Source returns the path the document was parsed from.
func (d *Document) Source() string { return d.source }

// Root returns the name of the document element.
func (d *Document) Root() string {
	if el := rootElement(d.root); el != nil {
		return el.Data
	}
	return ""
}

// Values evaluates expr and returns the matched node values in document
// order. Element matches yield their text content, attribute matches their
// value.
func (d *Document) Values(expr string) ([]string, error) {
	return values(d.root, expr)
}

// Required returns the first value matched by expr. A query with no match
// (or only blank matches) is a MissingFieldError for field.
func (d *Document) Required(field, expr string) (string, error) {
	v, ok, err := d.Optional(expr)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &MissingFieldError{Field: field, Path: d.source}
	}
	return v, nil
}

// Optional returns the first non-blank value matched by expr and whether one
// was found.
func (d *Document) Optional(expr string) (string, bool, error) {
	vals, err := d.Values(expr)
	if err != nil {
		return "", false, err
	}
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v, true, nil
		}
	}
	return "", false, nil
}

// Nodes evaluates expr and returns the matched element nodes.
func (d *Document) Nodes(expr string) ([]Node, error) {
	return nodes(d.root, expr)
}

// Attr returns the value of the named attribute and whether it is present.
func (n Node) Attr(name string) (string, bool) {
	for _, a := range n.n.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Name returns the element name.
func (n Node) Name() string { return n.n.Data }

// Text returns the trimmed text content of the node.
func (n Node) Text() string { return strings.TrimSpace(n.n.InnerText()) }

// Values evaluates expr relative to n.
func (n Node) Values(expr string) ([]string, error) {
	return values(n.n, expr)
}

// Nodes evaluates expr relative to n.
func (n Node) Nodes(expr string) ([]Node, error) {
	return nodes(n.n, expr)
}

func values(top *xmlquery.Node, expr string) ([]string, error) {
	matched, err := xmlquery.QueryAll(top, expr)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", expr, err)
	}
	out := make([]string, 0, len(matched))
	for _, m := range matched {
		out = append(out, m.InnerText())
	}
	return out, nil
}

func nodes(top *xmlquery.Node, expr string) ([]Node, error) {
	matched, err := xmlquery.QueryAll(top, expr)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", expr, err)
	}
	out := make([]Node, 0, len(matched))
	for _, m := range matched {
		if m.Type != xmlquery.ElementNode {
			continue
		}
		out = append(out, Node{n: m})
	}
	return out, nil
}

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}
