package rebuild

import "github.com/wudi/pdfpress/ir/raw"

// pruneUnreachable drops every object the trailer can no longer reach.
// Rasterization orphans the original images, content streams, and fonts of
// every page; substitution can orphan palettes of replaced images. Without
// the sweep those bodies would be written out alongside the replacements.
func pruneUnreachable(doc *raw.Document) int {
	if doc.Trailer == nil {
		return 0
	}
	reachable := make(map[raw.ObjectRef]bool)
	markReachable(doc, doc.Trailer, reachable)

	pruned := 0
	for ref := range doc.Objects {
		if !reachable[ref] {
			delete(doc.Objects, ref)
			pruned++
		}
	}
	return pruned
}

func markReachable(doc *raw.Document, obj raw.Object, reachable map[raw.ObjectRef]bool) {
	if obj == nil {
		return
	}
	switch t := obj.(type) {
	case raw.Reference:
		ref := t.Ref()
		if reachable[ref] {
			return
		}
		reachable[ref] = true
		if target, ok := doc.Objects[ref]; ok {
			markReachable(doc, target, reachable)
		}
	case raw.Array:
		for i := 0; i < t.Len(); i++ {
			v, _ := t.Get(i)
			markReachable(doc, v, reachable)
		}
	case raw.Dictionary:
		for _, k := range t.Keys() {
			v, _ := t.Get(k)
			markReachable(doc, v, reachable)
		}
	case raw.Stream:
		markReachable(doc, t.Dictionary(), reachable)
	}
}
