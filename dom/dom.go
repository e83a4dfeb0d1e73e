// Package dom is a small structural document model for HTML/SVG markup.
//
// It is not a browser parser. Markup is scanned with a single pattern that
// recognizes either a paired open/close tag or a self-closing tag at each
// position, which is enough to navigate the home page documents fetched by
// the transaction signer. Nodes live in an arena owned by the Document and
// are addressed by NodeID; queries are plain functions over a Document and
// a starting node.
package dom

import "errors"

// ErrParse is returned when no top-level element can be recognized.
var ErrParse = errors.New("dom: no element found in markup")

// NodeID addresses a node inside its Document.
type NodeID int32

// Root is the synthetic root node of every parsed Document.
const Root NodeID = 0

// RootTag is the tag name of the synthetic root.
const RootTag = "root"

type node struct {
	tag      string
	attrs    map[string]string
	content  string
	raw      string
	children []NodeID
}

// Document is an immutable element tree. It is safe for concurrent reads.
type Document struct {
	nodes []node
}

// Element is a read-only view of one node.
type Element struct {
	Tag         string
	Attributes  map[string]string
	TextContent string
	RawSource   string
	Children    []NodeID
}

// Len reports how many nodes the document holds, root included.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.nodes)
}

func (d *Document) valid(id NodeID) bool {
	return d != nil && id >= 0 && int(id) < len(d.nodes)
}

// Tag returns the tag name as written in the markup.
func (d *Document) Tag(id NodeID) string {
	if !d.valid(id) {
		return ""
	}
	return d.nodes[id].tag
}

// Attr returns the attribute value. Attributes written without a value
// report ok with an empty string.
func (d *Document) Attr(id NodeID, name string) (string, bool) {
	if !d.valid(id) {
		return "", false
	}
	v, ok := d.nodes[id].attrs[name]
	return v, ok
}

// Content returns the inner markup between the open and close tag.
func (d *Document) Content(id NodeID) string {
	if !d.valid(id) {
		return ""
	}
	return d.nodes[id].content
}

// Raw returns the full source matched for the node. For Root it is the
// whole input, doctype and comments included.
func (d *Document) Raw(id NodeID) string {
	if !d.valid(id) {
		return ""
	}
	return d.nodes[id].raw
}

// Children returns a copy of the child list in document order.
func (d *Document) Children(id NodeID) []NodeID {
	if !d.valid(id) {
		return nil
	}
	return append([]NodeID(nil), d.nodes[id].children...)
}

// Element returns a detached copy of the node.
func (d *Document) Element(id NodeID) (Element, bool) {
	if !d.valid(id) {
		return Element{}, false
	}
	n := d.nodes[id]
	attrs := make(map[string]string, len(n.attrs))
	for k, v := range n.attrs {
		attrs[k] = v
	}
	return Element{
		Tag:         n.tag,
		Attributes:  attrs,
		TextContent: n.content,
		RawSource:   n.raw,
		Children:    append([]NodeID(nil), n.children...),
	}, true
}
