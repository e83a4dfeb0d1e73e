package dom

import (
	"regexp"
	"strings"
)

// AttrOp is the comparison applied by an attribute filter.
type AttrOp int

const (
	OpNone AttrOp = iota
	OpEquals
	OpPrefix
)

var (
	selectorRe = regexp.MustCompile(`^([a-zA-Z0-9*-]+)(?:\[([^\]]+)\])?$`)
	attrSelRe  = regexp.MustCompile(`^\s*([a-zA-Z0-9-]+)\s*(\^?=)\s*(?:'([^']*)'|"([^"]*)"|([^'"\s]*))\s*$`)
)

// Selector is a compiled `tag`, `*`, `tag[attr=value]` or `tag[attr^=value]`
// expression. The zero value matches nothing.
type Selector struct {
	tag   string
	attr  string
	op    AttrOp
	value string
	valid bool
}

// Compile parses sel. Unsupported syntax yields a selector that never
// matches; it is not an error.
func Compile(sel string) Selector {
	parts := selectorRe.FindStringSubmatch(strings.TrimSpace(sel))
	if parts == nil {
		return Selector{}
	}
	s := Selector{tag: parts[1], valid: true}
	if parts[2] == "" {
		return s
	}
	am := attrSelRe.FindStringSubmatch(parts[2])
	if am == nil {
		return Selector{}
	}
	value := am[3] + am[4] + am[5]
	// An empty value drops the attribute test.
	if value == "" {
		return s
	}
	s.attr, s.value = am[1], value
	s.op = OpEquals
	if am[2] == "^=" {
		s.op = OpPrefix
	}
	return s
}

// Match reports whether node id satisfies the selector. Attributes that are
// present but empty never satisfy an attribute filter.
func (s Selector) Match(d *Document, id NodeID) bool {
	if !s.valid || !d.valid(id) {
		return false
	}
	n := &d.nodes[id]
	if s.tag != "*" && !strings.EqualFold(n.tag, s.tag) {
		return false
	}
	switch s.op {
	case OpEquals:
		return n.attrs[s.attr] != "" && n.attrs[s.attr] == s.value
	case OpPrefix:
		v := n.attrs[s.attr]
		return v != "" && strings.HasPrefix(v, s.value)
	}
	return true
}

func (s Selector) String() string {
	if !s.valid {
		return "<never>"
	}
	switch s.op {
	case OpEquals:
		return s.tag + "[" + s.attr + "=" + s.value + "]"
	case OpPrefix:
		return s.tag + "[" + s.attr + "^=" + s.value + "]"
	}
	return s.tag
}
