package pdfcpu

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/wudi/pdfpress/engine"
)

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
	path := filepath.Join(dir, "doc.pdf")
	e := New(Config{})
	err := e.Compress(context.Background(), path, path, engine.PresetSmall, nil)
	if !errors.Is(err, engine.ErrOutputWrite) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompressCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(Config{})
	err := e.Compress(ctx, "in.pdf", "out.pdf", engine.PresetSmall, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
