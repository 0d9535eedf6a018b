// Package extractor finds Image XObjects across a document's pages and
// decodes them to pixel buffers.
package extractor

import (
	"context"
	"fmt"

	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/observability"
	"github.com/wudi/pdfpress/pages"
)

// ColorSpace classifies an image's color model.
type ColorSpace int

const (
	ColorUnknown ColorSpace = iota
	ColorGray
	ColorRGB
	ColorCMYK
	ColorIndexed
)

func (c ColorSpace) String() string {
	switch c {
	case ColorGray:
		return "Gray"
	case ColorRGB:
		return "RGB"
	case ColorCMYK:
		return "CMYK"
	case ColorIndexed:
		return "Indexed"
	}
	return "Unknown"
}

// FilterKind classifies the terminal encoding of an image stream.
type FilterKind int

const (
	FilterRaw FilterKind = iota
	FilterDCT
	FilterJPX
	FilterOther
)

// Descriptor describes one image XObject, keyed by its underlying object
// identity so an image shared between pages is processed once.
type Descriptor struct {
	Ref              raw.ObjectRef
	Name             string // first resource name it was seen under
	Pages            []int  // every page index referencing it
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       ColorSpace
	Filter           FilterKind
}

// Image is a descriptor plus its decoded pixel buffer: row-major,
// 8 bits per component, Components per pixel. Unsupported images carry no
// pixels and a reason instead.
type Image struct {
	Descriptor
	Pix         []byte
	Components  int
	Unsupported bool
	Reason      string

	stream raw.Stream
}

// Release drops the pixel buffer once replacement bytes exist; decoded
// buffers dominate memory on large scans.
func (i *Image) Release() { i.Pix = nil }

// OriginalData returns the image's undecoded stream bytes.
func (i *Image) OriginalData() []byte {
	if i.stream == nil {
		return nil
	}
	return i.stream.RawData()
}

type Config struct {
	// MinDimension skips images whose width or height is below it (icons).
	MinDimension int
	Limits       filters.Limits
	Logger       observability.Logger
}

type Extractor struct {
	doc     *raw.Document
	tree    *pages.Tree
	filters *filters.Pipeline
	cfg     Config
	log     observability.Logger
}

func New(doc *raw.Document, tree *pages.Tree, cfg Config) *Extractor {
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Extractor{
		doc:     doc,
		tree:    tree,
		filters: filters.Default(cfg.Limits),
		cfg:     cfg,
		log:     log,
	}
}

// Extract walks every page's resources in order and returns each distinct
// image once, in first-seen order. A single image's decode failure marks
// that image unsupported; it never aborts the rest.
func (e *Extractor) Extract(ctx context.Context) ([]*Image, error) {
	byRef := make(map[raw.ObjectRef]*Image)
	var result []*Image

	for _, page := range e.tree.Pages() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		for _, found := range e.collectPageImages(page) {
			img := byRef[found.ref]
			if img == nil {
				img = &Image{
					Descriptor: Descriptor{Ref: found.ref, Name: found.name},
					stream:     found.stream,
				}
				byRef[found.ref] = img
				result = append(result, img)
			}
			if n := len(img.Pages); n == 0 || img.Pages[n-1] != page.Index {
				img.Pages = append(img.Pages, page.Index)
			}
		}
	}

	for _, img := range result {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := e.decode(ctx, img); err != nil {
			img.Unsupported = true
			img.Reason = err.Error()
			e.log.Warn("image left unreplaced",
				observability.String("ref", img.Ref.String()),
				observability.Error("err", err))
		}
	}
	return result, nil
}

type foundImage struct {
	ref    raw.ObjectRef
	name   string
	stream raw.Stream
}

// collectPageImages walks the page's XObject resources, descending into
// Form XObjects with an explicit stack and a visited set so cyclic resource
// graphs terminate.
func (e *Extractor) collectPageImages(page *pages.Page) []foundImage {
	var found []foundImage
	visited := make(map[raw.ObjectRef]bool)

	type resFrame struct{ res raw.Dictionary }
	stack := []resFrame{{res: page.Resources()}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.res == nil {
			continue
		}
		xobjects := pages.DictDict(e.doc, top.res, "XObject")
		if xobjects == nil {
			continue
		}
		for _, key := range xobjects.Keys() {
			entry, _ := xobjects.Get(key)
			ref, isRef := entry.(raw.Reference)
			if isRef {
				if visited[ref.Ref()] {
					continue
				}
				visited[ref.Ref()] = true
			}
			stream, ok := e.doc.Resolve(entry).(raw.Stream)
			if !ok {
				continue
			}
			subtype, _ := pages.DictName(stream.Dictionary(), "Subtype")
			switch subtype {
			case "Image":
				if !isRef {
					// Direct image streams have no shareable identity;
					// they are rare and skipped rather than duplicated.
					continue
				}
				found = append(found, foundImage{ref: ref.Ref(), name: key.Value(), stream: stream})
			case "Form":
				inner := pages.DictDict(e.doc, stream.Dictionary(), "Resources")
				if inner != nil {
					stack = append(stack, resFrame{res: inner})
				}
			}
		}
	}
	return found
}

func (e *Extractor) decode(ctx context.Context, img *Image) error {
	dict := img.stream.Dictionary()
	w, _ := pages.DictInt(e.doc, dict, "Width")
	h, _ := pages.DictInt(e.doc, dict, "Height")
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", w, h)
	}
	img.Width, img.Height = w, h

	bpc, ok := pages.DictInt(e.doc, dict, "BitsPerComponent")
	if !ok {
		bpc = 8
	}
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("invalid bits per component %d", bpc)
	}
	img.BitsPerComponent = bpc

	if e.cfg.MinDimension > 0 && (w < e.cfg.MinDimension || h < e.cfg.MinDimension) {
		return fmt.Errorf("below minimum dimension %d", e.cfg.MinDimension)
	}

	return e.decodePixels(ctx, img)
}
