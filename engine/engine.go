// Package engine defines the compression façade shared by all backends.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/wudi/pdfpress/rebuild"
)

// Engine compresses PDF files. Implementations are safe for concurrent use;
// each Compress call runs its own isolated pipeline.
type Engine interface {
	// Name identifies the backend in logs and benchmark output.
	Name() string

	// IsAvailable reports whether the backend can run in this environment.
	IsAvailable() bool

	// Compress reads input, recompresses it under the preset, and writes
	// output atomically. The input file is never modified. On any error the
	// output path is left absent. onProgress may be nil.
	Compress(ctx context.Context, input, output string, preset Preset, onProgress ProgressFunc) error
}

// Preset bundles the knobs a compression run exposes.
type Preset struct {
	ID          string
	TargetDPI   int
	JPEGQuality float64 // 0..1
	Grayscale   bool
	// Strict turns recoverable per-image and per-page problems into errors.
	Strict   bool
	Strategy rebuild.Strategy
}

// Built-in presets, ordered from most to least aggressive.
var (
	PresetTiny   = Preset{ID: "tiny", TargetDPI: 36, JPEGQuality: 0.3}
	PresetSmall  = Preset{ID: "small", TargetDPI: 72, JPEGQuality: 0.5}
	PresetMedium = Preset{ID: "medium", TargetDPI: 150, JPEGQuality: 0.7}
	PresetLarge  = Preset{ID: "large", TargetDPI: 300, JPEGQuality: 0.85}
)

// Presets lists the built-in presets in declaration order.
func Presets() []Preset {
	return []Preset{PresetTiny, PresetSmall, PresetMedium, PresetLarge}
}

// PresetByID looks up a built-in preset.
func PresetByID(id string) (Preset, bool) {
	for _, p := range Presets() {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// Progress is a point-in-time report. Current never decreases within a run
// and Total stays fixed once reported.
type Progress struct {
	Current int
	Total   int
	Message string
}

// ProgressFunc receives progress updates during Compress.
type ProgressFunc func(Progress)

// Sentinel errors for taxonomy checks with errors.Is.
var (
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrInputNotFound     = errors.New("input file not found")
	ErrOutputWrite       = errors.New("output write failed")
)

// UnsupportedDocumentError marks input the engine understands to be a PDF
// but cannot process, such as encrypted or unparsable files.
type UnsupportedDocumentError struct {
	Reason string
}

func (e *UnsupportedDocumentError) Error() string {
	return fmt.Sprintf("unsupported document: %s", e.Reason)
}

// ProcessingError wraps a mid-pipeline failure.
type ProcessingError struct {
	Detail string
	Err    error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("processing failed: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("processing failed: %s", e.Detail)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// SamePath reports whether two paths name the same file once absolutized.
// Every backend must refuse to write its output over the input.
func SamePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return aa == bb
}
