// Package pages provides read-only traversal of a parsed PDF's page tree,
// resource dictionaries, and page geometry.
package pages

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfpress/ir/raw"
)

// Letter is the fallback page size in points, used when a MediaBox is
// missing or degenerate.
var Letter = [4]float64{0, 0, 612, 792}

// PointsPerInch is the PDF user-space unit density.
const PointsPerInch = 72.0

// Page is one leaf of the page tree.
type Page struct {
	Index int
	Ref   raw.ObjectRef
	Dict  raw.Dictionary

	doc *raw.Document
	// attributes inherited from Pages nodes
	inheritedMediaBox  raw.Object
	inheritedResources raw.Object
}

// Tree holds the flattened page list of a document.
type Tree struct {
	doc   *raw.Document
	pages []*Page
}

// ErrNoPages is returned for documents whose catalog yields no pages.
var ErrNoPages = errors.New("pages: document has no pages")

// Load walks the catalog's page tree and returns the pages in document
// order. The walk is iterative with a visited set, so reference cycles in a
// malformed tree terminate instead of recursing forever.
func Load(doc *raw.Document) (*Tree, error) {
	if doc == nil || doc.Trailer == nil {
		return nil, errors.New("pages: document missing trailer")
	}
	rootObj, ok := doc.Trailer.Get(raw.NameLiteral("Root"))
	if !ok {
		return nil, errors.New("pages: catalog not found in trailer")
	}
	catalog, ok := doc.Resolve(rootObj).(raw.Dictionary)
	if !ok {
		return nil, errors.New("pages: catalog is not a dictionary")
	}
	pagesObj, ok := catalog.Get(raw.NameLiteral("Pages"))
	if !ok {
		return nil, errors.New("pages: catalog has no page tree")
	}

	type frame struct {
		obj       raw.Object
		mediaBox  raw.Object
		resources raw.Object
	}
	stack := []frame{{obj: pagesObj}}
	visited := make(map[raw.ObjectRef]bool)
	tree := &Tree{doc: doc}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if ref, ok := top.obj.(raw.Reference); ok {
			if visited[ref.Ref()] {
				continue
			}
			visited[ref.Ref()] = true
		}
		dict, ok := doc.Resolve(top.obj).(raw.Dictionary)
		if !ok {
			continue
		}

		mediaBox := top.mediaBox
		if mb, ok := dict.Get(raw.NameLiteral("MediaBox")); ok {
			mediaBox = mb
		}
		resources := top.resources
		if res, ok := dict.Get(raw.NameLiteral("Resources")); ok {
			resources = res
		}

		typ, _ := DictName(dict, "Type")
		switch typ {
		case "Pages":
			kids, ok := doc.Resolve(valueOf(dict, "Kids")).(raw.Array)
			if !ok {
				continue
			}
			// Push in reverse so kids pop in document order.
			for i := kids.Len() - 1; i >= 0; i-- {
				kid, _ := kids.Get(i)
				stack = append(stack, frame{obj: kid, mediaBox: mediaBox, resources: resources})
			}
		case "Page":
			page := &Page{
				Index:              len(tree.pages),
				Dict:               dict,
				doc:                doc,
				inheritedMediaBox:  mediaBox,
				inheritedResources: resources,
			}
			if ref, ok := top.obj.(raw.Reference); ok {
				page.Ref = ref.Ref()
			}
			tree.pages = append(tree.pages, page)
		default:
			// Tolerate nodes missing /Type: treat dicts with /Contents as pages.
			if _, ok := dict.Get(raw.NameLiteral("Contents")); ok {
				page := &Page{
					Index:              len(tree.pages),
					Dict:               dict,
					doc:                doc,
					inheritedMediaBox:  mediaBox,
					inheritedResources: resources,
				}
				if ref, ok := top.obj.(raw.Reference); ok {
					page.Ref = ref.Ref()
				}
				tree.pages = append(tree.pages, page)
			}
		}
	}

	if len(tree.pages) == 0 {
		return nil, ErrNoPages
	}
	return tree, nil
}

func (t *Tree) Count() int     { return len(t.pages) }
func (t *Tree) Pages() []*Page { return t.pages }

func (t *Tree) Page(i int) (*Page, error) {
	if i < 0 || i >= len(t.pages) {
		return nil, fmt.Errorf("pages: index %d out of range", i)
	}
	return t.pages[i], nil
}

// MediaBox returns the page's media box as [llx lly urx ury], falling back
// to the inherited value and then to Letter when absent or degenerate.
func (p *Page) MediaBox() [4]float64 {
	for _, candidate := range []raw.Object{valueOf(p.Dict, "MediaBox"), p.inheritedMediaBox} {
		if candidate == nil {
			continue
		}
		arr, ok := p.doc.Resolve(candidate).(raw.Array)
		if !ok || arr.Len() != 4 {
			continue
		}
		var box [4]float64
		valid := true
		for i := 0; i < 4; i++ {
			item, _ := arr.Get(i)
			num, ok := p.doc.Resolve(item).(raw.Number)
			if !ok {
				valid = false
				break
			}
			box[i] = num.Float()
		}
		if !valid {
			continue
		}
		if box[2] <= box[0] || box[3] <= box[1] {
			continue // degenerate
		}
		return box
	}
	return Letter
}

// WidthInches and HeightInches express the media box in physical units.
func (p *Page) WidthInches() float64 {
	box := p.MediaBox()
	return (box[2] - box[0]) / PointsPerInch
}

func (p *Page) HeightInches() float64 {
	box := p.MediaBox()
	return (box[3] - box[1]) / PointsPerInch
}

// Resources resolves the page's resource dictionary, inherited if needed.
func (p *Page) Resources() raw.Dictionary {
	for _, candidate := range []raw.Object{valueOf(p.Dict, "Resources"), p.inheritedResources} {
		if candidate == nil {
			continue
		}
		if dict, ok := p.doc.Resolve(candidate).(raw.Dictionary); ok {
			return dict
		}
	}
	return nil
}

// Contents returns the page's content stream data, concatenated when the
// Contents entry is an array. Streams are returned raw (undecoded).
func (p *Page) Contents() []raw.Stream {
	obj := valueOf(p.Dict, "Contents")
	if obj == nil {
		return nil
	}
	switch v := p.doc.Resolve(obj).(type) {
	case raw.Stream:
		return []raw.Stream{v}
	case raw.Array:
		var out []raw.Stream
		for i := 0; i < v.Len(); i++ {
			item, _ := v.Get(i)
			if s, ok := p.doc.Resolve(item).(raw.Stream); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Helpers for dictionary access shared by the extractor and rebuilder.

func valueOf(dict raw.Dictionary, key string) raw.Object {
	if dict == nil {
		return nil
	}
	val, _ := dict.Get(raw.NameLiteral(key))
	return val
}

// DictName reads a direct name entry.
func DictName(dict raw.Dictionary, key string) (string, bool) {
	obj := valueOf(dict, key)
	if obj == nil {
		return "", false
	}
	name, ok := obj.(raw.Name)
	if !ok {
		return "", false
	}
	return name.Value(), true
}

// DictInt reads an integer entry, resolving references through doc.
func DictInt(doc *raw.Document, dict raw.Dictionary, key string) (int, bool) {
	obj := valueOf(dict, key)
	if obj == nil {
		return 0, false
	}
	num, ok := doc.Resolve(obj).(raw.Number)
	if !ok {
		return 0, false
	}
	return int(num.Int()), true
}

// DictDict resolves a dictionary-valued entry.
func DictDict(doc *raw.Document, dict raw.Dictionary, key string) raw.Dictionary {
	obj := valueOf(dict, key)
	if obj == nil {
		return nil
	}
	switch v := doc.Resolve(obj).(type) {
	case raw.Dictionary:
		return v
	case raw.Stream:
		return v.Dictionary()
	}
	return nil
}
