package rebuild

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/wudi/pdfpress/contentstream"
	"github.com/wudi/pdfpress/coords"
	"github.com/wudi/pdfpress/extractor"
	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/pages"
)

// rasterize renders each page onto a white canvas at the target density and
// replaces the page's contents with a single full-bleed image. Only image
// placements are rendered; text and vector operators are dropped.
func (r *Rebuilder) rasterize(ctx context.Context, doc *raw.Document, tree *pages.Tree, images []*extractor.Image) (*Stats, error) {
	stats := &Stats{}

	byRef := make(map[raw.ObjectRef]*extractor.Image, len(images))
	for _, img := range images {
		byRef[img.Ref] = img
	}

	dpi := r.cfg.Optimize.TargetDPI
	if dpi <= 0 {
		dpi = 150
	}

	nextNum := doc.MaxObjectNum() + 1
	pipeline := filters.Default(filters.Limits{})

	for _, page := range tree.Pages() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		canvas, err := r.renderPage(ctx, doc, page, byRef, pipeline, dpi)
		if err != nil {
			return nil, pageError(page.Index, err)
		}

		var buf bytes.Buffer
		quality := 75
		if r.cfg.Optimize.JPEGQuality > 0 {
			quality = int(math.Round(r.cfg.Optimize.JPEGQuality * 100))
			if quality < 1 {
				quality = 1
			} else if quality > 100 {
				quality = 100
			}
		}
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
			return nil, pageError(page.Index, err)
		}

		imageRef := raw.ObjectRef{Num: nextNum}
		nextNum++
		contentRef := raw.ObjectRef{Num: nextNum}
		nextNum++

		b := canvas.Bounds()
		imgDict := raw.Dict()
		imgDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XObject"))
		imgDict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Image"))
		imgDict.Set(raw.NameLiteral("Width"), raw.NumberInt(int64(b.Dx())))
		imgDict.Set(raw.NameLiteral("Height"), raw.NumberInt(int64(b.Dy())))
		imgDict.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(8))
		colorSpace := "DeviceRGB"
		if r.cfg.Optimize.Grayscale {
			colorSpace = "DeviceGray"
		}
		imgDict.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral(colorSpace))
		imgDict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("DCTDecode"))
		doc.Objects[imageRef] = raw.NewStream(imgDict, buf.Bytes())

		box := page.MediaBox()
		content := pageContent(box)
		doc.Objects[contentRef] = raw.NewStream(raw.Dict(), content)

		rewritePageDict(page.Dict, box, imageRef, contentRef)
		stats.PagesRasterized++
		r.step(fmt.Sprintf("page %d", page.Index))
	}

	return stats, nil
}

// pageContent draws /Im0 stretched across the media box. The image keeps the
// page's aspect ratio because the canvas was sized from the same box.
func pageContent(box [4]float64) []byte {
	w := box[2] - box[0]
	h := box[3] - box[1]
	ops := []contentstream.Operation{
		{Operator: "q"},
		{Operator: "cm", Operands: []contentstream.Operand{
			contentstream.NumberOperand{Value: w},
			contentstream.NumberOperand{Value: 0},
			contentstream.NumberOperand{Value: 0},
			contentstream.NumberOperand{Value: h},
			contentstream.NumberOperand{Value: box[0]},
			contentstream.NumberOperand{Value: box[1]},
		}},
		{Operator: "Do", Operands: []contentstream.Operand{contentstream.NameOperand{Value: "Im0"}}},
		{Operator: "Q"},
	}
	return contentstream.Serialize(ops)
}

// rewritePageDict keeps the page object and its MediaBox, swapping only the
// contents and resources.
func rewritePageDict(dict raw.Dictionary, box [4]float64, imageRef, contentRef raw.ObjectRef) {
	xobjects := raw.Dict()
	xobjects.Set(raw.NameLiteral("Im0"), raw.Ref(imageRef.Num, imageRef.Gen))
	resources := raw.Dict()
	resources.Set(raw.NameLiteral("XObject"), xobjects)

	dict.Set(raw.NameLiteral("Resources"), resources)
	dict.Set(raw.NameLiteral("Contents"), raw.Ref(contentRef.Num, contentRef.Gen))
	dict.Set(raw.NameLiteral("MediaBox"), raw.NewArray(
		raw.NumberFloat(box[0]), raw.NumberFloat(box[1]),
		raw.NumberFloat(box[2]), raw.NumberFloat(box[3])))
	dict.Set(raw.NameLiteral("Rotate"), raw.NumberInt(0))
}

// renderPage replays the page's content stream, compositing every image
// XObject placement onto the canvas under the tracked CTM. Form XObjects are
// replayed recursively with their matrix applied.
func (r *Rebuilder) renderPage(ctx context.Context, doc *raw.Document, page *pages.Page, byRef map[raw.ObjectRef]*extractor.Image, pipeline *filters.Pipeline, dpi int) (*image.RGBA, error) {
	box := page.MediaBox()
	scale := float64(dpi) / pages.PointsPerInch
	width := int(math.Round((box[2] - box[0]) * scale))
	height := int(math.Round((box[3] - box[1]) * scale))
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("degenerate page size %dx%d", width, height)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	// device maps PDF points to canvas pixels with the y axis flipped.
	device := coords.Translate(-box[0], -box[1]).
		Multiply(coords.Scale(scale, -scale)).
		Multiply(coords.Translate(0, float64(height)))

	var data []byte
	for _, stream := range page.Contents() {
		decoded, terminal, err := pipeline.DecodeStream(ctx, doc, stream)
		if err != nil || terminal != "" {
			if r.cfg.Strict {
				return nil, fmt.Errorf("decode content stream: %w", err)
			}
			continue
		}
		data = append(data, decoded...)
		data = append(data, '\n')
	}

	if err := r.replayOps(ctx, doc, page.Resources(), data, pipeline, byRef, canvas, device, 0); err != nil {
		return nil, err
	}
	return canvas, nil
}

const maxFormDepth = 8

func (r *Rebuilder) replayOps(ctx context.Context, doc *raw.Document, resources raw.Dictionary, data []byte, pipeline *filters.Pipeline, byRef map[raw.ObjectRef]*extractor.Image, canvas *image.RGBA, base coords.Matrix, depth int) error {
	ops, err := contentstream.Parse(data)
	if err != nil {
		return err
	}

	interp := contentstream.NewInterpreter()
	interp.Strict = r.cfg.Strict
	interp.Handle("Do", func(st *contentstream.State, op contentstream.Operation) error {
		if len(op.Operands) != 1 {
			return nil
		}
		name, ok := op.Operands[0].(contentstream.NameOperand)
		if !ok {
			return nil
		}
		return r.placeXObject(ctx, doc, resources, name.Value, pipeline, byRef, canvas, st.CTM.Multiply(base), depth)
	})
	return interp.Exec(ops)
}

func (r *Rebuilder) placeXObject(ctx context.Context, doc *raw.Document, resources raw.Dictionary, name string, pipeline *filters.Pipeline, byRef map[raw.ObjectRef]*extractor.Image, canvas *image.RGBA, ctm coords.Matrix, depth int) error {
	if resources == nil || depth > maxFormDepth {
		return nil
	}
	xobjects := pages.DictDict(doc, resources, "XObject")
	if xobjects == nil {
		return nil
	}
	entry, ok := xobjects.Get(raw.NameLiteral(name))
	if !ok {
		return nil
	}
	ref, isRef := entry.(raw.Reference)
	stream, ok := doc.Resolve(entry).(raw.Stream)
	if !ok {
		return nil
	}

	subtype, _ := pages.DictName(stream.Dictionary(), "Subtype")
	switch subtype {
	case "Image":
		if !isRef {
			return nil
		}
		img := byRef[ref.Ref()]
		if img == nil || img.Unsupported || img.Pix == nil {
			return nil
		}
		compositeImage(canvas, img, ctm)
	case "Form":
		inner := pages.DictDict(doc, stream.Dictionary(), "Resources")
		if inner == nil {
			inner = resources
		}
		formCTM := ctm
		if m, ok := formMatrix(doc, stream.Dictionary()); ok {
			formCTM = m.Multiply(ctm)
		}
		data, terminal, err := pipeline.DecodeStream(ctx, doc, stream)
		if err != nil || terminal != "" {
			return nil
		}
		return r.replayOps(ctx, doc, inner, data, pipeline, byRef, canvas, formCTM, depth+1)
	}
	return nil
}

func formMatrix(doc *raw.Document, dict raw.Dictionary) (coords.Matrix, bool) {
	obj, ok := dict.Get(raw.NameLiteral("Matrix"))
	if !ok {
		return coords.Matrix{}, false
	}
	arr, ok := doc.Resolve(obj).(raw.Array)
	if !ok || arr.Len() != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i := 0; i < 6; i++ {
		item, _ := arr.Get(i)
		num, ok := doc.Resolve(item).(raw.Number)
		if !ok {
			return coords.Matrix{}, false
		}
		m[i] = num.Float()
	}
	return m, true
}

// compositeImage maps the image's pixel grid through the unit square and the
// CTM onto the canvas. Image space runs top-down, the unit square bottom-up,
// so the pixel-to-unit transform carries its own flip.
func compositeImage(canvas *image.RGBA, img *extractor.Image, ctm coords.Matrix) {
	src := toDrawable(img)
	if src == nil {
		return
	}
	if !unitSquareVisible(ctm, canvas.Bounds()) {
		return
	}
	pixelToUnit := coords.Matrix{
		1 / float64(img.Width), 0,
		0, -1 / float64(img.Height),
		0, 1,
	}
	m := pixelToUnit.Multiply(ctm)
	aff := f64.Aff3{m[0], m[2], m[4], m[1], m[3], m[5]}
	xdraw.CatmullRom.Transform(canvas, aff, src, src.Bounds(), xdraw.Over, nil)
}

// unitSquareVisible reports whether the CTM maps any part of the unit square
// onto the canvas, so fully off-page placements skip the resampling pass.
func unitSquareVisible(ctm coords.Matrix, bounds image.Rectangle) bool {
	corners := []coords.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		p := ctm.Transform(c)
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return maxX > float64(bounds.Min.X) && minX < float64(bounds.Max.X) &&
		maxY > float64(bounds.Min.Y) && minY < float64(bounds.Max.Y)
}

func toDrawable(img *extractor.Image) image.Image {
	rect := image.Rect(0, 0, img.Width, img.Height)
	switch img.Components {
	case 1:
		return &image.Gray{Pix: img.Pix, Stride: img.Width, Rect: rect}
	case 3:
		rgba := image.NewRGBA(rect)
		for i := 0; i < img.Width*img.Height; i++ {
			rgba.Pix[i*4] = img.Pix[i*3]
			rgba.Pix[i*4+1] = img.Pix[i*3+1]
			rgba.Pix[i*4+2] = img.Pix[i*3+2]
			rgba.Pix[i*4+3] = 0xff
		}
		return rgba
	case 4:
		return &image.CMYK{Pix: img.Pix, Stride: img.Width * 4, Rect: rect}
	}
	return nil
}

func pageError(index int, err error) error {
	return fmt.Errorf("page %d: %w", index, err)
}
