package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/pages"
)

// decodePixels fills img.Pix with 8-bit row-major samples.
func (e *Extractor) decodePixels(ctx context.Context, img *Image) error {
	data, terminal, err := e.filters.DecodeStream(ctx, e.doc, img.stream)
	if err != nil {
		return err
	}

	switch terminal {
	case "":
		img.Filter = FilterRaw
	case "DCTDecode", "DCT":
		img.Filter = FilterDCT
		return e.decodeJPEG(img, data)
	case "JPXDecode":
		img.Filter = FilterJPX
		return fmt.Errorf("no JPEG2000 decoder available")
	default:
		img.Filter = FilterOther
		return fmt.Errorf("no decoder for %s", terminal)
	}

	cs, err := e.parseColorSpace(img)
	if err != nil {
		return err
	}
	img.ColorSpace = cs.kind

	switch cs.kind {
	case ColorGray:
		img.Components = 1
	case ColorRGB:
		img.Components = 3
	case ColorCMYK:
		img.Components = 4
	case ColorIndexed:
		return e.expandIndexed(img, data, cs)
	default:
		return fmt.Errorf("unsupported color space")
	}

	pix, err := unpackSamples(data, img.Width, img.Height, img.Components, img.BitsPerComponent)
	if err != nil {
		return err
	}
	img.Pix = pix
	return nil
}

func (e *Extractor) decodeJPEG(img *Image, data []byte) error {
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode jpeg: %w", err)
	}
	b := decoded.Bounds()
	img.Width, img.Height = b.Dx(), b.Dy()
	img.BitsPerComponent = 8

	switch src := decoded.(type) {
	case *image.Gray:
		img.ColorSpace = ColorGray
		img.Components = 1
		img.Pix = normalizeStride(src.Pix, src.Stride, img.Width*1, img.Height)
	case *image.CMYK:
		img.ColorSpace = ColorCMYK
		img.Components = 4
		pix := normalizeStride(src.Pix, src.Stride, img.Width*4, img.Height)
		// PDF stores CMYK ink coverage; image.CMYK matches, but Adobe
		// JPEGs often carry inverted samples. The jpeg decoder already
		// handles the inversion, so pass samples through.
		img.Pix = pix
	default:
		img.ColorSpace = ColorRGB
		img.Components = 3
		pix := make([]byte, img.Width*img.Height*3)
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := decoded.At(x, y).RGBA()
				pix[i] = byte(r >> 8)
				pix[i+1] = byte(g >> 8)
				pix[i+2] = byte(bl >> 8)
				i += 3
			}
		}
		img.Pix = pix
	}
	return nil
}

func normalizeStride(pix []byte, stride, rowLen, height int) []byte {
	if stride == rowLen && len(pix) == rowLen*height {
		out := make([]byte, len(pix))
		copy(out, pix)
		return out
	}
	out := make([]byte, rowLen*height)
	for y := 0; y < height; y++ {
		copy(out[y*rowLen:(y+1)*rowLen], pix[y*stride:])
	}
	return out
}

type colorSpaceInfo struct {
	kind    ColorSpace
	palette []byte // RGB triples for Indexed
	baseN   int    // base components for Indexed
}

func (e *Extractor) parseColorSpace(img *Image) (colorSpaceInfo, error) {
	dict := img.stream.Dictionary()

	// Stencil masks paint the current fill color through a 1-bit mask.
	// Re-encoding one as an opaque image would lose both the color and the
	// transparency, so they stay untouched.
	if mask, ok := dict.Get(raw.NameLiteral("ImageMask")); ok {
		if b, ok := e.doc.Resolve(mask).(raw.Boolean); ok && b.Value() {
			return colorSpaceInfo{}, fmt.Errorf("stencil mask")
		}
	}

	obj, ok := dict.Get(raw.NameLiteral("ColorSpace"))
	if !ok {
		return colorSpaceInfo{}, fmt.Errorf("image has no color space")
	}

	switch cs := e.doc.Resolve(obj).(type) {
	case raw.Name:
		return colorSpaceInfo{kind: colorSpaceByName(cs.Value())}, nil
	case raw.Array:
		return e.parseColorSpaceArray(cs)
	}
	return colorSpaceInfo{}, fmt.Errorf("unrecognized color space object")
}

func colorSpaceByName(name string) ColorSpace {
	switch name {
	case "DeviceGray", "CalGray", "G":
		return ColorGray
	case "DeviceRGB", "CalRGB", "RGB":
		return ColorRGB
	case "DeviceCMYK", "CMYK":
		return ColorCMYK
	}
	return ColorUnknown
}

func (e *Extractor) parseColorSpaceArray(arr raw.Array) (colorSpaceInfo, error) {
	if arr.Len() == 0 {
		return colorSpaceInfo{}, fmt.Errorf("empty color space array")
	}
	first, _ := arr.Get(0)
	family, ok := e.doc.Resolve(first).(raw.Name)
	if !ok {
		return colorSpaceInfo{}, fmt.Errorf("color space family is not a name")
	}

	switch family.Value() {
	case "ICCBased":
		if arr.Len() >= 2 {
			item, _ := arr.Get(1)
			if stream, ok := e.doc.Resolve(item).(raw.Stream); ok {
				if n, ok := pages.DictInt(e.doc, stream.Dictionary(), "N"); ok {
					switch n {
					case 1:
						return colorSpaceInfo{kind: ColorGray}, nil
					case 3:
						return colorSpaceInfo{kind: ColorRGB}, nil
					case 4:
						return colorSpaceInfo{kind: ColorCMYK}, nil
					}
				}
			}
		}
		return colorSpaceInfo{}, fmt.Errorf("ICCBased color space without usable N")
	case "Indexed", "I":
		return e.parseIndexed(arr)
	}
	return colorSpaceInfo{}, fmt.Errorf("unsupported color space family %s", family.Value())
}

func (e *Extractor) parseIndexed(arr raw.Array) (colorSpaceInfo, error) {
	if arr.Len() != 4 {
		return colorSpaceInfo{}, fmt.Errorf("malformed Indexed color space")
	}
	baseObj, _ := arr.Get(1)
	var baseKind ColorSpace
	switch base := e.doc.Resolve(baseObj).(type) {
	case raw.Name:
		baseKind = colorSpaceByName(base.Value())
	case raw.Array:
		info, err := e.parseColorSpaceArray(base)
		if err != nil {
			return colorSpaceInfo{}, err
		}
		baseKind = info.kind
	}
	var baseN int
	switch baseKind {
	case ColorGray:
		baseN = 1
	case ColorRGB:
		baseN = 3
	case ColorCMYK:
		baseN = 4
	default:
		return colorSpaceInfo{}, fmt.Errorf("unsupported Indexed base")
	}

	lookupObj, _ := arr.Get(3)
	var lookup []byte
	switch v := e.doc.Resolve(lookupObj).(type) {
	case raw.String:
		lookup = v.Value()
	case raw.Stream:
		data, terminal, err := e.filters.DecodeStream(context.Background(), e.doc, v)
		if err != nil || terminal != "" {
			return colorSpaceInfo{}, fmt.Errorf("undecodable Indexed palette")
		}
		lookup = data
	default:
		return colorSpaceInfo{}, fmt.Errorf("missing Indexed palette")
	}
	return colorSpaceInfo{kind: ColorIndexed, palette: lookup, baseN: baseN}, nil
}

// expandIndexed maps palette indices to RGB so downstream stages only see
// device color spaces.
func (e *Extractor) expandIndexed(img *Image, data []byte, cs colorSpaceInfo) error {
	indices, err := unpackSamples(data, img.Width, img.Height, 1, img.BitsPerComponent)
	if err != nil {
		return err
	}
	// Sub-byte indices are scaled by unpackSamples; undo to raw index values.
	maxVal := (1 << uint(img.BitsPerComponent)) - 1
	pix := make([]byte, img.Width*img.Height*3)
	for i, scaled := range indices {
		idx := int(scaled)
		if img.BitsPerComponent < 8 {
			idx = int(scaled) * maxVal / 255
		}
		off := idx * cs.baseN
		if off+cs.baseN > len(cs.palette) {
			return fmt.Errorf("palette index %d out of range", idx)
		}
		var r, g, b byte
		switch cs.baseN {
		case 1:
			r, g, b = cs.palette[off], cs.palette[off], cs.palette[off]
		case 3:
			r, g, b = cs.palette[off], cs.palette[off+1], cs.palette[off+2]
		case 4:
			c, m, y, k := cs.palette[off], cs.palette[off+1], cs.palette[off+2], cs.palette[off+3]
			r, g, b = cmykToRGB(c, m, y, k)
		}
		pix[i*3], pix[i*3+1], pix[i*3+2] = r, g, b
	}
	img.Pix = pix
	img.Components = 3
	img.BitsPerComponent = 8
	return nil
}

func cmykToRGB(c, m, y, k byte) (byte, byte, byte) {
	r := 255 - min16(int(c)+int(k))
	g := 255 - min16(int(m)+int(k))
	b := 255 - min16(int(y)+int(k))
	return byte(r), byte(g), byte(b)
}

func min16(v int) int {
	if v > 255 {
		return 255
	}
	return v
}

// unpackSamples reconstructs a row-major 8-bit buffer from packed samples.
// Rows are byte aligned: bytesPerRow = ceil(width*components*bpc/8).
func unpackSamples(data []byte, width, height, components, bpc int) ([]byte, error) {
	bytesPerRow := (width*components*bpc + 7) / 8
	if len(data) < bytesPerRow*height {
		return nil, fmt.Errorf("pixel data too short: have %d, need %d", len(data), bytesPerRow*height)
	}
	out := make([]byte, width*height*components)

	switch bpc {
	case 8:
		for y := 0; y < height; y++ {
			copy(out[y*width*components:(y+1)*width*components], data[y*bytesPerRow:])
		}
		return out, nil
	case 16:
		for y := 0; y < height; y++ {
			row := data[y*bytesPerRow:]
			for i := 0; i < width*components; i++ {
				out[y*width*components+i] = row[i*2] // high byte
			}
		}
		return out, nil
	}

	// 1, 2, or 4 bits per component.
	maxVal := (1 << uint(bpc)) - 1
	for y := 0; y < height; y++ {
		row := data[y*bytesPerRow:]
		bit := 0
		for i := 0; i < width*components; i++ {
			byteIdx := bit / 8
			shift := 8 - bpc - (bit % 8)
			v := int(row[byteIdx]>>uint(shift)) & maxVal
			out[y*width*components+i] = byte(v * 255 / maxVal)
			bit += bpc
		}
	}
	return out, nil
}
