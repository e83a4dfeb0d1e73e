package dom

// QuerySelector returns the first node in pre-order, starting at from
// itself, that matches sel. The walk does not enter the subtree of a
// matching node.
func QuerySelector(d *Document, from NodeID, sel Selector) (NodeID, bool) {
	if !d.valid(from) {
		return 0, false
	}
	var found NodeID
	ok := false
	var walk func(NodeID)
	walk = func(id NodeID) {
		if ok {
			return
		}
		if sel.Match(d, id) {
			found, ok = id, true
			return
		}
		for _, c := range d.nodes[id].children {
			walk(c)
		}
	}
	walk(from)
	return found, ok
}

// QuerySelectorAll returns every node in pre-order, starting at from itself,
// that matches sel. Unlike QuerySelector it always descends, so a matching
// container and its matching descendants are all returned.
func QuerySelectorAll(d *Document, from NodeID, sel Selector) []NodeID {
	if !d.valid(from) {
		return nil
	}
	var out []NodeID
	var walk func(NodeID)
	walk = func(id NodeID) {
		if sel.Match(d, id) {
			out = append(out, id)
		}
		for _, c := range d.nodes[id].children {
			walk(c)
		}
	}
	walk(from)
	return out
}

// Find compiles sel and runs QuerySelector from the root.
func (d *Document) Find(sel string) (NodeID, bool) {
	return QuerySelector(d, Root, Compile(sel))
}

// FindAll compiles sel and runs QuerySelectorAll from the root.
func (d *Document) FindAll(sel string) []NodeID {
	return QuerySelectorAll(d, Root, Compile(sel))
}
