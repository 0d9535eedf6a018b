package ghostscript

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/wudi/pdfpress/engine"
	"github.com/wudi/pdfpress/rebuild"
)

func TestParsePageLine(t *testing.T) {
	cases := []struct {
		line string
		n    int
		ok   bool
	}{
		{"Page 1", 1, true},
		{"Page 42", 42, true},
		{"Page  7", 7, true},
		{"Page 0", 0, false},
		{"Page x", 0, false},
		{"Loading font", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		n, ok := parsePageLine(tc.line)
		if n != tc.n || ok != tc.ok {
			t.Errorf("parsePageLine(%q) = %d, %v; want %d, %v", tc.line, n, ok, tc.n, tc.ok)
		}
	}
}

func TestParsePageRange(t *testing.T) {
	from, to, ok := parsePageRange("Processing pages 1 through 12.")
	if !ok || from != 1 || to != 12 {
		t.Fatalf("got %d, %d, %v", from, to, ok)
	}
	for _, line := range []string{
		"Processing pages 5 through 2.",
		"Processing pages one through ten.",
		"Page 3",
		"",
	} {
		if _, _, ok := parsePageRange(line); ok {
			t.Errorf("parsePageRange(%q) matched", line)
		}
	}
}

func TestBuildArgsProfiles(t *testing.T) {
	e := New(Config{})
	cases := []struct {
		preset  engine.Preset
		profile string
	}{
		{engine.PresetTiny, "-dPDFSETTINGS=/screen"},
		{engine.PresetSmall, "-dPDFSETTINGS=/screen"},
		{engine.PresetMedium, "-dPDFSETTINGS=/ebook"},
		{engine.PresetLarge, "-dPDFSETTINGS=/printer"},
	}
	for _, tc := range cases {
		args := e.buildArgs(tc.preset, "out.pdf", "in.pdf")
		if !slices.Contains(args, tc.profile) {
			t.Errorf("preset %s: missing %s in %v", tc.preset.ID, tc.profile, args)
		}
	}
}

func TestBuildArgs(t *testing.T) {
	e := New(Config{})
	preset := engine.PresetMedium
	preset.Grayscale = true
	args := e.buildArgs(preset, "out.pdf", "in.pdf")

	for _, want := range []string{
		"-sDEVICE=pdfwrite",
		"-dColorImageResolution=150",
		"-dJPEGQ=70",
		"-sProcessColorModel=DeviceGray",
		"-sColorConversionStrategy=Gray",
		"-sOutputFile=out.pdf",
	} {
		if !slices.Contains(args, want) {
			t.Errorf("missing %s in %v", want, args)
		}
	}
	if args[len(args)-1] != "in.pdf" {
		t.Errorf("input must be the last argument: %v", args)
	}
}

func TestBuildArgsRasterizeForcesScreen(t *testing.T) {
	e := New(Config{})
	preset := engine.PresetLarge
	preset.Strategy = rebuild.StrategyRasterize
	args := e.buildArgs(preset, "out.pdf", "in.pdf")
	if !slices.Contains(args, "-dPDFSETTINGS=/screen") {
		t.Fatalf("rasterize must force /screen: %v", args)
	}
}

func TestCompressOutputEqualsInput(t *testing.T) {
	// The test binary itself stands in for gs so availability passes and the
	// path check is what trips.
	e := New(Config{Binary: os.Args[0]})
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	err := e.Compress(context.Background(), path, path, engine.PresetSmall, nil)
	if !errors.Is(err, engine.ErrOutputWrite) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompressUnavailable(t *testing.T) {
	e := New(Config{Binary: filepath.Join(t.TempDir(), "no-such-gs")})
	err := e.Compress(context.Background(), "in.pdf", "out.pdf", engine.PresetSmall, nil)
	if !errors.Is(err, engine.ErrEngineUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
