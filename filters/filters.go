package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfpress/ir/raw"
)

// Decoder turns one filter's encoded bytes back into plain bytes.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary) ([]byte, error)
}

// Limits bounds decode work to tolerate hostile streams.
type Limits struct {
	MaxDecompressedSize int64
}

// ErrUnsupportedFilter marks filters this pipeline cannot decode (image
// codecs such as JPXDecode are handled downstream or not at all).
var ErrUnsupportedFilter = errors.New("filters: unsupported filter")

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with the provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// Default returns a pipeline holding every built-in decoder.
func Default(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		flateDecoder{maxSize: limits.MaxDecompressedSize},
		NewASCIIHexDecoder(),
		NewASCII85Decoder(),
		NewRunLengthDecoder(),
	}, limits)
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Decode applies the named filters in order.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	data := input
	for i, name := range filterNames {
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(data)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("filters: decompressed size exceeds limit")
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		data = out
	}
	return data, nil
}

// imageCodecs are terminal filters whose output is pixel data, not bytes that
// further stream filters consume.
func isImageCodec(name string) bool {
	switch name {
	case "DCTDecode", "DCT", "JPXDecode", "JBIG2Decode", "CCITTFaxDecode":
		return true
	}
	return false
}

// DecodeStream decodes a stream's transport filters (Flate, ASCII wrappers,
// RunLength) and stops at the first image codec, returning its name as
// terminal. A fully decoded stream reports an empty terminal.
func (p *Pipeline) DecodeStream(ctx context.Context, doc *raw.Document, stream raw.Stream) (data []byte, terminal string, err error) {
	dict := stream.Dictionary()
	names, params := filterChain(doc, dict)
	data = stream.RawData()
	for i, name := range names {
		if isImageCodec(name) {
			return data, name, nil
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(data)) > p.limits.MaxDecompressedSize {
			return nil, "", errors.New("filters: decompressed size exceeds limit")
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, "", fmt.Errorf("decode %s: %w", name, err)
		}
		data = out
	}
	return data, "", nil
}

// filterChain reads the Filter and DecodeParms entries, normalizing the
// single-name and array forms.
func filterChain(doc *raw.Document, dict raw.Dictionary) ([]string, []raw.Dictionary) {
	if dict == nil {
		return nil, nil
	}
	resolve := func(obj raw.Object) raw.Object {
		if doc != nil {
			return doc.Resolve(obj)
		}
		return obj
	}
	var names []string
	var params []raw.Dictionary

	fobj, _ := dict.Get(raw.NameLiteral("Filter"))
	pobj, _ := dict.Get(raw.NameLiteral("DecodeParms"))
	switch f := resolve(fobj).(type) {
	case raw.Name:
		names = []string{f.Value()}
		if d, ok := resolve(pobj).(raw.Dictionary); ok {
			params = []raw.Dictionary{d}
		}
	case raw.Array:
		for i := 0; i < f.Len(); i++ {
			item, _ := f.Get(i)
			if n, ok := resolve(item).(raw.Name); ok {
				names = append(names, n.Value())
			}
		}
		if arr, ok := resolve(pobj).(raw.Array); ok {
			for i := 0; i < arr.Len(); i++ {
				item, _ := arr.Get(i)
				d, _ := resolve(item).(raw.Dictionary)
				params = append(params, d)
			}
		}
	}
	return names, params
}

// Flate

type flateDecoder struct {
	// maxSize caps the inflated output. Zero means unbounded.
	maxSize int64
}

func NewFlateDecoder() Decoder    { return flateDecoder{} }
func (flateDecoder) Name() string { return "FlateDecode" }

func (d flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var rd io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		rd = zr
	} else {
		// Some producers omit the zlib wrapper.
		rd = flate.NewReader(bytes.NewReader(in))
	}
	defer rd.Close()

	var src io.Reader = rd
	if d.maxSize > 0 {
		// One extra byte distinguishes "hit the cap" from "exactly the cap".
		src = io.LimitReader(rd, d.maxSize+1)
	}
	var out bytes.Buffer
	if _, err := io.Copy(&out, src); err != nil && out.Len() == 0 {
		return nil, err
	}
	if d.maxSize > 0 && int64(out.Len()) > d.maxSize {
		return nil, errors.New("flate: decompressed size exceeds limit")
	}
	return applyPredictor(out.Bytes(), params)
}

// applyPredictor reverses PNG predictors declared in DecodeParms.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	pred := paramInt(params, "Predictor", 1)
	if pred < 2 {
		return data, nil
	}
	columns := paramInt(params, "Columns", 1)
	colors := paramInt(params, "Colors", 1)
	bpc := paramInt(params, "BitsPerComponent", 8)
	if pred == 2 {
		// TIFF predictor: only the byte-aligned 8-bit case is handled.
		if bpc != 8 {
			return nil, fmt.Errorf("tiff predictor with %d bits unsupported", bpc)
		}
		rowLen := columns * colors
		for r := 0; r+rowLen <= len(data); r += rowLen {
			for i := colors; i < rowLen; i++ {
				data[r+i] += data[r+i-colors]
			}
		}
		return data, nil
	}

	bpp := (colors*bpc + 7) / 8
	rowLen := (columns*colors*bpc + 7) / 8
	if rowLen <= 0 {
		return nil, errors.New("invalid predictor row length")
	}
	stride := rowLen + 1
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		tag := data[r*stride]
		row := make([]byte, rowLen)
		copy(row, data[r*stride+1:(r+1)*stride])
		switch tag {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				left := 0
				if i >= bpp {
					left = int(row[i-bpp])
				}
				row[i] += byte((left + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = row[i-bpp]
					upLeft = prev[i-bpp]
				}
				row[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("unknown png predictor tag %d", tag)
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func paramInt(params raw.Dictionary, key string, def int) int {
	if params == nil {
		return def
	}
	obj, ok := params.Get(raw.NameLiteral(key))
	if !ok {
		return def
	}
	num, ok := obj.(raw.Number)
	if !ok {
		return def
	}
	return int(num.Int())
}

// ASCIIHex

type asciiHexDecoder struct{}

func NewASCIIHexDecoder() Decoder    { return asciiHexDecoder{} }
func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	trimmed := compactWhitespace(in)
	if i := bytes.IndexByte(trimmed, '>'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if len(trimmed)%2 == 1 {
		trimmed = append(trimmed, '0') // odd count pads with zero
	}
	result := make([]byte, hex.DecodedLen(len(trimmed)))
	n, err := hex.Decode(result, trimmed)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}

func compactWhitespace(in []byte) []byte {
	out := make([]byte, 0, len(in))
	for _, c := range in {
		switch c {
		case 0, '\t', '\n', '\f', '\r', ' ':
		default:
			out = append(out, c)
		}
	}
	return out
}

// ASCII85

type ascii85Decoder struct{}

func NewASCII85Decoder() Decoder    { return ascii85Decoder{} }
func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	if bytes.HasPrefix(trimmed, []byte("<~")) {
		trimmed = trimmed[2:]
	}
	if idx := bytes.Index(trimmed, []byte("~>")); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	// A "z" group expands one input byte to four output bytes, so the
	// buffer must assume the worst case or Decode silently stops short.
	out := make([]byte, len(trimmed)*4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// RunLength

type runLengthDecoder struct{}

func NewRunLengthDecoder() Decoder    { return runLengthDecoder{} }
func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (runLengthDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(in) {
		length := int(in[i])
		i++
		switch {
		case length == 128:
			return out.Bytes(), nil // EOD
		case length < 128:
			end := i + length + 1
			if end > len(in) {
				return nil, errors.New("runlength: literal run past end of data")
			}
			out.Write(in[i:end])
			i = end
		default:
			if i >= len(in) {
				return nil, errors.New("runlength: repeat run past end of data")
			}
			for j := 0; j < 257-length; j++ {
				out.WriteByte(in[i])
			}
			i++
		}
	}
	return out.Bytes(), nil
}
