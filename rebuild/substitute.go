package rebuild

import (
	"context"
	"fmt"

	"github.com/wudi/pdfpress/contentstream"
	"github.com/wudi/pdfpress/extractor"
	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/observability"
	"github.com/wudi/pdfpress/optimize"
	"github.com/wudi/pdfpress/pages"
)

// substitute recompresses each supported image and swaps its stream object
// when the new encoding is smaller. Content streams are untouched: the
// replacement keeps the original object number, so every Do operator and
// resource entry keeps pointing at the right image.
func (r *Rebuilder) substitute(ctx context.Context, doc *raw.Document, tree *pages.Tree, images []*extractor.Image) (*Stats, error) {
	stats := &Stats{}

	if err := r.checkContents(doc, tree); err != nil {
		return nil, err
	}

	for _, img := range images {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := r.substituteOne(doc, tree, img, stats); err != nil {
			return nil, err
		}
		r.step("image " + img.Ref.String())
	}

	return stats, nil
}

func (r *Rebuilder) substituteOne(doc *raw.Document, tree *pages.Tree, img *extractor.Image, stats *Stats) error {
	if img.Unsupported {
		stats.ImagesSkipped++
		return nil
	}

	dpi := optimize.EstimateMaxDPI(img, tree)
	result, err := optimize.Downsample(img, dpi, r.cfg.Optimize)
	if err != nil {
		if r.cfg.Strict {
			return fmt.Errorf("image %s: %w", img.Ref, err)
		}
		r.log.Warn("recompression failed, keeping original",
			observability.String("ref", img.Ref.String()),
			observability.Error("err", err))
		stats.ImagesSkipped++
		return nil
	}

	origStream, ok := doc.Objects[img.Ref].(*raw.StreamObj)
	if !ok {
		stats.ImagesSkipped++
		return nil
	}
	if len(result.Data) >= len(origStream.Data) {
		// Recompression did not pay off for this image.
		stats.ImagesSkipped++
		return nil
	}

	doc.Objects[img.Ref] = buildImageStream(origStream, result)
	stats.ImagesReplaced++
	r.log.Debug("image replaced",
		observability.String("ref", img.Ref.String()),
		observability.Int("from", len(origStream.Data)),
		observability.Int("to", len(result.Data)))
	img.Release()
	return nil
}

// buildImageStream assembles the replacement XObject. Transparency entries
// carry over: a soft mask maps onto the unit square independently of the
// base image's pixel dimensions, so the original mask stays valid.
func buildImageStream(orig *raw.StreamObj, result *optimize.Result) *raw.StreamObj {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XObject"))
	dict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Image"))
	dict.Set(raw.NameLiteral("Width"), raw.NumberInt(int64(result.Width)))
	dict.Set(raw.NameLiteral("Height"), raw.NumberInt(int64(result.Height)))
	dict.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(8))
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("DCTDecode"))
	if result.Gray {
		dict.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral("DeviceGray"))
	} else {
		dict.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral("DeviceRGB"))
	}
	for _, key := range []string{"SMask", "Mask", "Intent", "Interpolate"} {
		if v, ok := orig.Dict.Get(raw.NameLiteral(key)); ok {
			dict.Set(raw.NameLiteral(key), v)
		}
	}
	return raw.NewStream(dict, result.Data)
}

// checkContents replays every page's content stream so malformed pages are
// caught before any object is swapped. In non-strict mode a bad page is
// logged and tolerated.
func (r *Rebuilder) checkContents(doc *raw.Document, tree *pages.Tree) error {
	pipeline := filters.Default(filters.Limits{})
	interp := contentstream.NewInterpreter()
	interp.Strict = r.cfg.Strict

	for _, page := range tree.Pages() {
		var data []byte
		for _, stream := range page.Contents() {
			decoded, terminal, err := pipeline.DecodeStream(context.Background(), doc, stream)
			if err != nil || terminal != "" {
				if r.cfg.Strict {
					return pageError(page.Index, err)
				}
				continue
			}
			data = append(data, decoded...)
			data = append(data, '\n')
		}
		ops, err := contentstream.Parse(data)
		if err != nil {
			if r.cfg.Strict {
				return pageError(page.Index, err)
			}
			r.log.Warn("content stream left unvalidated",
				observability.Int("page", page.Index),
				observability.Error("err", err))
			continue
		}
		if err := interp.Exec(ops); err != nil {
			if r.cfg.Strict {
				return pageError(page.Index, err)
			}
		}
	}
	return nil
}
