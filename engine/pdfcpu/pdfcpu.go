// Package pdfcpu adapts the pdfcpu optimizer to the engine façade. It does
// not resample images; it deduplicates and restructures objects, which makes
// it a useful lossless baseline in benchmarks.
package pdfcpu

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/wudi/pdfpress/engine"
	"github.com/wudi/pdfpress/observability"
)

// Config for the adapter.
type Config struct {
	Logger observability.Logger
}

// Engine wraps api.OptimizeFile.
type Engine struct {
	log observability.Logger
}

func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Engine{log: log}
}

func (e *Engine) Name() string      { return "pdfcpu" }
func (e *Engine) IsAvailable() bool { return true }

// Compress optimizes input into output. The preset is accepted for interface
// parity; pdfcpu's optimizer has no density or quality knobs to map it onto.
func (e *Engine) Compress(ctx context.Context, input, output string, preset engine.Preset, onProgress engine.ProgressFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if engine.SamePath(input, output) {
		return fmt.Errorf("%w: output path equals input path", engine.ErrOutputWrite)
	}
	if _, err := os.Stat(input); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", input, engine.ErrInputNotFound)
		}
		return fmt.Errorf("stat input: %w", err)
	}

	dir := filepath.Dir(output)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(output)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrOutputWrite, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if onProgress != nil {
		onProgress(engine.Progress{Current: 0, Total: 1, Message: "optimizing"})
	}
	if err := api.OptimizeFile(input, tmpPath, nil); err != nil {
		return &engine.ProcessingError{Detail: "pdfcpu optimize", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, output); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrOutputWrite, err)
	}
	if onProgress != nil {
		onProgress(engine.Progress{Current: 1, Total: 1, Message: "done"})
	}
	e.log.Info("optimized",
		observability.String("input", input),
		observability.String("output", output))
	return nil
}
