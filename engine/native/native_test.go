package native

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wudi/pdfpress/engine"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/parser"
	"github.com/wudi/pdfpress/rebuild"
	"github.com/wudi/pdfpress/writer"
)

// writeFixture serializes a one-page document with a 400x400 gray image to
// path and returns the file size.
func writeFixture(t *testing.T, path string) int64 {
	t.Helper()

	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), raw.Ref(2, 0))

	root := raw.Dict()
	root.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	root.Set(raw.NameLiteral("Count"), raw.NumberInt(1))
	root.Set(raw.NameLiteral("Kids"), raw.NewArray(raw.Ref(3, 0)))

	xobjects := raw.Dict()
	xobjects.Set(raw.NameLiteral("Im0"), raw.Ref(5, 0))
	resources := raw.Dict()
	resources.Set(raw.NameLiteral("XObject"), xobjects)

	page := raw.Dict()
	page.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
	page.Set(raw.NameLiteral("MediaBox"), raw.NewArray(
		raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)))
	page.Set(raw.NameLiteral("Resources"), resources)
	page.Set(raw.NameLiteral("Contents"), raw.Ref(4, 0))

	content := raw.NewStream(raw.Dict(), []byte("q 612 0 0 792 0 0 cm /Im0 Do Q"))

	imgDict := raw.Dict()
	imgDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XObject"))
	imgDict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Image"))
	imgDict.Set(raw.NameLiteral("Width"), raw.NumberInt(400))
	imgDict.Set(raw.NameLiteral("Height"), raw.NumberInt(400))
	imgDict.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral("DeviceGray"))
	imgDict.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(8))
	// Varied samples so the raw stream does not flate away to nothing.
	pix := make([]byte, 400*400)
	for i := range pix {
		pix[i] = byte(i*31 + i/400*17)
	}
	imgStream := raw.NewStream(imgDict, pix)

	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))

	doc := &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{
			{Num: 1}: catalog,
			{Num: 2}: root,
			{Num: 3}: page,
			{Num: 4}: content,
			{Num: 5}: imgStream,
		},
		Trailer: trailer,
	}

	if err := writer.New(writer.Config{}).WriteFile(path, doc); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.Size()
}

func TestCompress(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.pdf")
	output := filepath.Join(dir, "out.pdf")
	inSize := writeFixture(t, input)
	before, err := os.ReadFile(input)
	if err != nil {
		t.Fatal(err)
	}

	e := New(Config{})
	var reports []engine.Progress
	err = e.Compress(context.Background(), input, output, engine.PresetTiny,
		func(p engine.Progress) { reports = append(reports, p) })
	if err != nil {
		t.Fatal(err)
	}

	// Input bytes untouched.
	after, err := os.ReadFile(input)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("input file was modified")
	}

	info, err := os.Stat(output)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= inSize {
		t.Fatalf("output not smaller: %d >= %d", info.Size(), inSize)
	}

	// Output parses and keeps the structure.
	f, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	doc, err := parser.New(parser.Config{}).Parse(context.Background(), f)
	if err != nil {
		t.Fatalf("output does not parse: %v", err)
	}
	if doc.Metadata.Producer != "pdfpress" {
		t.Fatalf("producer = %q", doc.Metadata.Producer)
	}

	// Progress is non-decreasing with a fixed total and ends complete.
	if len(reports) == 0 {
		t.Fatal("no progress reported")
	}
	total := reports[0].Total
	prev := 0
	for _, p := range reports {
		if p.Total != total {
			t.Fatalf("total changed: %d -> %d", total, p.Total)
		}
		if p.Current < prev {
			t.Fatalf("progress decreased: %d -> %d", prev, p.Current)
		}
		prev = p.Current
	}
	last := reports[len(reports)-1]
	if last.Current != total || last.Message != "write" {
		t.Fatalf("final report = %+v, want current %d", last, total)
	}
}

func TestCompressInputNotFound(t *testing.T) {
	dir := t.TempDir()
	e := New(Config{})
	err := e.Compress(context.Background(),
		filepath.Join(dir, "missing.pdf"), filepath.Join(dir, "out.pdf"),
		engine.PresetSmall, nil)
	if !errors.Is(err, engine.ErrInputNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompressOutputEqualsInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.pdf")
	writeFixture(t, input)

	e := New(Config{})
	err := e.Compress(context.Background(), input, input, engine.PresetSmall, nil)
	if !errors.Is(err, engine.ErrOutputWrite) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompressUnsupportedDocument(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.pdf")
	output := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(input, []byte("not a pdf at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(Config{})
	err := e.Compress(context.Background(), input, output, engine.PresetSmall, nil)
	var ue *engine.UnsupportedDocumentError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Fatal("output must be absent on failure")
	}
}

func TestCompressCancellation(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.pdf")
	output := filepath.Join(dir, "out.pdf")
	writeFixture(t, input)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(Config{})
	err := e.Compress(ctx, input, output, engine.PresetSmall, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Fatal("output must be absent after cancellation")
	}
}

func TestCompressPresetLadder(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.pdf")
	writeFixture(t, input)

	e := New(Config{})
	presets := []struct {
		name   string
		preset engine.Preset
	}{
		{"tiny", engine.PresetTiny},
		{"small", engine.PresetSmall},
		{"medium", engine.PresetMedium},
	}
	var prev int64
	for _, tc := range presets {
		output := filepath.Join(dir, tc.name+".pdf")
		if err := e.Compress(context.Background(), input, output, tc.preset, nil); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		info, err := os.Stat(output)
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() < prev {
			t.Fatalf("%s output %d bytes, smaller than the lower preset's %d",
				tc.name, info.Size(), prev)
		}
		prev = info.Size()
	}
}

func TestCompressRasterize(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.pdf")
	output := filepath.Join(dir, "out.pdf")
	writeFixture(t, input)

	preset := engine.PresetTiny
	preset.Strategy = rebuild.StrategyRasterize
	e := New(Config{})
	var last engine.Progress
	err := e.Compress(context.Background(), input, output, preset,
		func(p engine.Progress) { last = p })
	if err != nil {
		t.Fatal(err)
	}
	// One page plus the final write.
	if last.Total != 2 || last.Current != 2 {
		t.Fatalf("progress = %+v", last)
	}

	// The flattened document must not drag the original page bodies along.
	inInfo, err := os.Stat(input)
	if err != nil {
		t.Fatal(err)
	}
	outInfo, err := os.Stat(output)
	if err != nil {
		t.Fatal(err)
	}
	if outInfo.Size() >= inInfo.Size() {
		t.Fatalf("rasterized output not smaller: %d >= %d", outInfo.Size(), inInfo.Size())
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := parser.New(parser.Config{}).Parse(context.Background(), f); err != nil {
		t.Fatalf("output does not parse: %v", err)
	}
}
