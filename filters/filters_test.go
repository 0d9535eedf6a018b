package filters

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfpress/ir/raw"
)

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFlateRoundtrip(t *testing.T) {
	plain := []byte("BT /F1 12 Tf (Hello) Tj ET")
	p := Default(Limits{})
	out, err := p.Decode(context.Background(), zlibCompress(t, plain), []string{"FlateDecode"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("got %q, want %q", out, plain)
	}
}

func TestASCIIHex(t *testing.T) {
	p := Default(Limits{})
	out, err := p.Decode(context.Background(), []byte("48656C6C6F>"), []string{"ASCIIHexDecode"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "Hello" {
		t.Fatalf("got %q", out)
	}
}

func TestASCII85(t *testing.T) {
	p := Default(Limits{})
	out, err := p.Decode(context.Background(), []byte("87cURD]i,\"Ebo80~>"), []string{"ASCII85Decode"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "Hello, World" {
		t.Fatalf("got %q", out)
	}
}

func TestASCII85ZeroRuns(t *testing.T) {
	// Each 'z' stands for four zero bytes, so the output is four times the
	// input length.
	encoded := append(bytes.Repeat([]byte{'z'}, 100), '~', '>')
	p := Default(Limits{})
	out, err := p.Decode(context.Background(), encoded, []string{"ASCII85Decode"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 400 {
		t.Fatalf("got %d bytes, want 400", len(out))
	}
	if !bytes.Equal(out, make([]byte, 400)) {
		t.Fatal("output must be all zeros")
	}
}

func TestRunLength(t *testing.T) {
	// literal run "AB", repeat run of 4 x 'C', EOD
	encoded := []byte{1, 'A', 'B', 253, 'C', 128}
	p := Default(Limits{})
	out, err := p.Decode(context.Background(), encoded, []string{"RunLengthDecode"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "ABCCCC" {
		t.Fatalf("got %q", out)
	}
}

func TestUnsupportedFilter(t *testing.T) {
	p := Default(Limits{})
	_, err := p.Decode(context.Background(), nil, []string{"JBIG2Decode"}, nil)
	if !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("got %v, want ErrUnsupportedFilter", err)
	}
}

func TestChainedFilters(t *testing.T) {
	plain := []byte("chained payload")
	compressed := zlibCompress(t, plain)
	var hexBuf bytes.Buffer
	for _, b := range compressed {
		hexBuf.WriteString(string("0123456789ABCDEF"[b>>4]) + string("0123456789ABCDEF"[b&0xf]))
	}
	hexBuf.WriteByte('>')

	p := Default(Limits{})
	out, err := p.Decode(context.Background(), hexBuf.Bytes(), []string{"ASCIIHexDecode", "FlateDecode"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("got %q, want %q", out, plain)
	}
}

func TestPNGUpPredictor(t *testing.T) {
	// Two 3-byte rows, 8-bit gray, PNG Up predictor. Row filter byte 2 = Up.
	raw0 := []byte{10, 20, 30}
	raw1 := []byte{15, 25, 35}
	var pre bytes.Buffer
	pre.WriteByte(2)
	pre.Write(raw0) // first row: prior row all zero
	pre.WriteByte(2)
	pre.Write([]byte{raw1[0] - raw0[0], raw1[1] - raw0[1], raw1[2] - raw0[2]})

	params := raw.Dict()
	params.Set(raw.NameLiteral("Predictor"), raw.NumberInt(12))
	params.Set(raw.NameLiteral("Colors"), raw.NumberInt(1))
	params.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(8))
	params.Set(raw.NameLiteral("Columns"), raw.NumberInt(3))

	p := Default(Limits{})
	out, err := p.Decode(context.Background(), zlibCompress(t, pre.Bytes()),
		[]string{"FlateDecode"}, []raw.Dictionary{params})
	if err != nil {
		t.Fatal(err)
	}
	want := append(append([]byte{}, raw0...), raw1...)
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v, want %v", out, want)
	}
}

func TestTIFFPredictor(t *testing.T) {
	// One row of 4 gray samples, TIFF predictor 2: each byte stores the
	// delta from its left neighbor.
	params := raw.Dict()
	params.Set(raw.NameLiteral("Predictor"), raw.NumberInt(2))
	params.Set(raw.NameLiteral("Colors"), raw.NumberInt(1))
	params.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(8))
	params.Set(raw.NameLiteral("Columns"), raw.NumberInt(4))

	deltas := []byte{100, 10, 10, 10}
	p := Default(Limits{})
	out, err := p.Decode(context.Background(), zlibCompress(t, deltas),
		[]string{"FlateDecode"}, []raw.Dictionary{params})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{100, 110, 120, 130}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v, want %v", out, want)
	}
}

func TestDecodeStreamStopsAtImageCodec(t *testing.T) {
	jpegBytes := []byte{0xff, 0xd8, 0xff, 0xe0}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("DCTDecode"))
	stream := raw.NewStream(dict, jpegBytes)

	p := Default(Limits{})
	data, terminal, err := p.DecodeStream(context.Background(), nil, stream)
	if err != nil {
		t.Fatal(err)
	}
	if terminal != "DCTDecode" {
		t.Fatalf("terminal = %q", terminal)
	}
	if !bytes.Equal(data, jpegBytes) {
		t.Fatal("payload must pass through untouched")
	}
}

func TestDecodeStreamFlateThenDCT(t *testing.T) {
	jpegBytes := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Filter"), raw.NewArray(
		raw.NameLiteral("FlateDecode"), raw.NameLiteral("DCTDecode")))
	stream := raw.NewStream(dict, zlibCompress(t, jpegBytes))

	p := Default(Limits{})
	data, terminal, err := p.DecodeStream(context.Background(), nil, stream)
	if err != nil {
		t.Fatal(err)
	}
	if terminal != "DCTDecode" {
		t.Fatalf("terminal = %q", terminal)
	}
	if !bytes.Equal(data, jpegBytes) {
		t.Fatalf("got %v, want %v", data, jpegBytes)
	}
}

func TestDecompressionLimit(t *testing.T) {
	big := bytes.Repeat([]byte{'x'}, 4096)
	p := Default(Limits{MaxDecompressedSize: 16})
	// The second pass sees 4096 decoded bytes, over the limit.
	_, err := p.Decode(context.Background(), zlibCompress(t, big),
		[]string{"FlateDecode", "FlateDecode"}, nil)
	if err == nil {
		t.Fatal("expected limit error")
	}
}

func TestFlateLimitStopsDuringInflate(t *testing.T) {
	// A highly compressible payload must be cut off while inflating, not
	// after the whole expansion has been buffered.
	bomb := zlibCompress(t, make([]byte, 1<<20))
	p := Default(Limits{MaxDecompressedSize: 64})
	_, err := p.Decode(context.Background(), bomb, []string{"FlateDecode"}, nil)
	if err == nil {
		t.Fatal("expected limit error")
	}
}
