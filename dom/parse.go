package dom

import (
	"fmt"
	"regexp"

	"github.com/dlclark/regexp2"
)

var (
	doctypeRe = regexp.MustCompile(`(?i)^\s*<!DOCTYPE[^>]*>`)
	commentRe = regexp.MustCompile(`<!--[\s\S]*?-->`)
	attrRe    = regexp.MustCompile(`([a-zA-Z0-9-]+)(?:=["']([^"']*)["'])?`)

	// The paired form needs a back-reference to the opening tag name, which
	// RE2 cannot express.
	elementRe = regexp2.MustCompile(
		`<([a-zA-Z0-9-]+)([^>]*)>([\s\S]*?)</\1>|<([a-zA-Z0-9-]+)([^>]*?)\s*/?>`,
		regexp2.None,
	)
)

// Parse builds a Document from raw markup. A leading doctype and all
// comments are ignored. A nested fragment that yields no element simply
// leaves its parent without children.
func Parse(markup string) (*Document, error) {
	d := &Document{nodes: []node{{tag: RootTag, attrs: map[string]string{}, raw: markup}}}
	children, err := d.scan(markup)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, ErrParse
	}
	d.nodes[Root].children = children
	return d, nil
}

// MustParse is like Parse but panics on error. Intended for fixtures.
func MustParse(markup string) *Document {
	d, err := Parse(markup)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Document) scan(markup string) ([]NodeID, error) {
	clean := doctypeRe.ReplaceAllString(markup, "")
	clean = commentRe.ReplaceAllString(clean, "")

	var ids []NodeID
	m, err := elementRe.FindStringMatch(clean)
	for ; m != nil && err == nil; m, err = elementRe.FindNextMatch(m) {
		tag, attrSrc := m.GroupByNumber(1).String(), m.GroupByNumber(2).String()
		if tag == "" {
			tag, attrSrc = m.GroupByNumber(4).String(), m.GroupByNumber(5).String()
		}
		content := m.GroupByNumber(3).String()

		id := NodeID(len(d.nodes))
		d.nodes = append(d.nodes, node{
			tag:     tag,
			attrs:   parseAttrs(attrSrc),
			content: content,
			raw:     m.String(),
		})
		if content != "" {
			children, cerr := d.scan(content)
			if cerr != nil {
				return nil, cerr
			}
			d.nodes[id].children = children
		}
		ids = append(ids, id)
	}
	if err != nil {
		return nil, fmt.Errorf("dom: scan markup: %w", err)
	}
	return ids, nil
}

func parseAttrs(src string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(src, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs
}
