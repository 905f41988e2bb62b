package addon

import (
	"fmt"
	"strings"
)

// Grammar parses dependency constraint strings. Grammars are versioned by
// name so a repository can document which one its manifests use.
type Grammar interface {
	Name() string
	Parse(raw string) (Constraint, error)
}

// Op is a constraint comparison operator.
type Op string

const (
	OpAny          Op = ""
	OpEqual        Op = "="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpPessimistic  Op = "~>"
)

// Constraint is a parsed version constraint. Raw is always the text from
// the manifest, unmodified.
type Constraint struct {
	Raw     string
	Op      Op
	Version Version

	opaque bool
}

// Allows reports whether v satisfies c. Constraints from the verbatim
// grammar allow every version.
func (c Constraint) Allows(v Version) bool {
	if c.opaque || c.Op == OpAny {
		return true
	}
	cmp := v.Precedence(c.Version)
	switch c.Op {
	case OpEqual:
		return cmp == 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpLess:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	case OpPessimistic:
		if cmp < 0 {
			return false
		}
		upper, err := c.upperBound()
		if err != nil {
			return false
		}
		return v.Precedence(upper) < 0
	}
	return false
}

// upperBound is the exclusive limit of a "~>" constraint: the next minor
// release when a patch was given, otherwise the next major release.
// Components are incremented as decimal strings, so they are not limited to
// the range of an int.
func (c Constraint) upperBound() (Version, error) {
	parts := strings.Split(releasePart(c.Version.String()), ".")
	core := strings.Split(releasePart(strings.TrimPrefix(c.Version.canonical, "v")), ".")
	var s string
	if len(parts) >= 3 {
		s = core[0] + "." + increment(core[1]) + ".0"
	} else {
		s = increment(core[0]) + ".0.0"
	}
	v, err := ParseVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("upper bound of %q: %w", c.Raw, err)
	}
	return v, nil
}

// increment adds one to a non-negative decimal string.
func increment(n string) string {
	b := []byte(n)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < '9' {
			b[i]++
			return string(b)
		}
		b[i] = '0'
	}
	return "1" + string(b)
}

func releasePart(raw string) string {
	if i := strings.IndexAny(raw, "~-+"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// KodiGrammar is grammar "kodi/1": an optional operator followed by a
// version. A bare version is a minimum version, which is how Kodi reads the
// version attribute of an import.
type KodiGrammar struct{}

func (KodiGrammar) Name() string { return "kodi/1" }

// Operators are matched longest first.
var kodiOps = []Op{OpGreaterEqual, OpLessEqual, OpPessimistic, "==", OpGreater, OpLess, OpEqual}

func (KodiGrammar) Parse(raw string) (Constraint, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Constraint{Raw: raw}, nil
	}
	op := OpGreaterEqual
	for _, candidate := range kodiOps {
		if strings.HasPrefix(s, string(candidate)) {
			op = candidate
			s = strings.TrimSpace(s[len(candidate):])
			break
		}
	}
	if op == "==" {
		op = OpEqual
	}
	v, err := ParseVersion(s)
	if err != nil {
		return Constraint{}, fmt.Errorf("constraint %q: %w", raw, err)
	}
	return Constraint{Raw: raw, Op: op, Version: v}, nil
}

// VerbatimGrammar accepts any constraint text and never evaluates it.
type VerbatimGrammar struct{}

func (VerbatimGrammar) Name() string { return "verbatim" }

func (VerbatimGrammar) Parse(raw string) (Constraint, error) {
	return Constraint{Raw: raw, opaque: true}, nil
}

// GrammarByName returns the grammar registered under name. The empty name
// selects the Kodi grammar.
func GrammarByName(name string) (Grammar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "kodi", "kodi/1":
		return KodiGrammar{}, nil
	case "verbatim":
		return VerbatimGrammar{}, nil
	}
	return nil, fmt.Errorf("unknown dependency grammar %q (want kodi or verbatim)", name)
}
