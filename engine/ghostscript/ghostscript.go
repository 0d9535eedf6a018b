// Package ghostscript adapts the Ghostscript pdfwrite device to the engine
// façade. It shells out to the gs binary and tracks progress from its stdout.
package ghostscript

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wudi/pdfpress/engine"
	"github.com/wudi/pdfpress/observability"
	"github.com/wudi/pdfpress/rebuild"
)

// Config locates and tunes the external binary.
type Config struct {
	// Binary overrides the gs executable path. Empty means search PATH.
	Binary string
	Logger observability.Logger
}

// Engine drives a Ghostscript subprocess per Compress call.
type Engine struct {
	binary string
	log    observability.Logger
}

func New(cfg Config) *Engine {
	binary := cfg.Binary
	if binary == "" {
		binary = "gs"
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Engine{binary: binary, log: log}
}

func (e *Engine) Name() string { return "ghostscript" }

func (e *Engine) IsAvailable() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

func (e *Engine) Compress(ctx context.Context, input, output string, preset engine.Preset, onProgress engine.ProgressFunc) error {
	if !e.IsAvailable() {
		return fmt.Errorf("%s: %w", e.binary, engine.ErrEngineUnavailable)
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

	// Ghostscript writes incrementally, so it targets a temp file that is
	// renamed into place only on success.
	dir := filepath.Dir(output)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(output)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrOutputWrite, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	args := e.buildArgs(preset, tmpPath, input)
	cmd := exec.CommandContext(ctx, e.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &engine.ProcessingError{Detail: "attach stdout", Err: err}
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return &engine.ProcessingError{Detail: "start ghostscript", Err: err}
	}

	total := 0
	current := 0
	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if from, to, ok := parsePageRange(line); ok {
			total = to - from + 1
			continue
		}
		if n, ok := parsePageLine(line); ok && onProgress != nil {
			if n > current {
				current = n
			}
			onProgress(engine.Progress{Current: current, Total: total, Message: line})
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &engine.ProcessingError{Detail: "ghostscript exited", Err: err}
	}
	if fi, err := os.Stat(tmpPath); err != nil || fi.Size() == 0 {
		return &engine.ProcessingError{Detail: "ghostscript produced no output"}
	}
	if err := os.Rename(tmpPath, output); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrOutputWrite, err)
	}
	e.log.Info("compressed",
		observability.String("input", input),
		observability.String("output", output),
		observability.String("preset", preset.ID))
	return nil
}

// buildArgs maps a preset onto the pdfwrite device. Presets bucket into the
// standard distiller profiles by target density, with explicit resolution
// flags so intermediate DPI values still apply.
func (e *Engine) buildArgs(preset engine.Preset, output, input string) []string {
	profile := "/printer"
	switch {
	case preset.TargetDPI <= 72:
		profile = "/screen"
	case preset.TargetDPI <= 150:
		profile = "/ebook"
	}

	quality := int(preset.JPEGQuality * 100)
	if quality < 1 {
		quality = 75
	} else if quality > 100 {
		quality = 100
	}

	args := []string{
		"-sDEVICE=pdfwrite",
		"-dPDFSETTINGS=" + profile,
		"-dNOPAUSE",
		"-dBATCH",
		"-dSAFER",
		"-dAutoRotatePages=/None",
		"-dDownsampleColorImages=true",
		"-dDownsampleGrayImages=true",
		"-dDownsampleMonoImages=true",
		"-dColorImageDownsampleType=/Bicubic",
		"-dGrayImageDownsampleType=/Bicubic",
		"-dMonoImageDownsampleType=/Bicubic",
		fmt.Sprintf("-dColorImageResolution=%d", preset.TargetDPI),
		fmt.Sprintf("-dGrayImageResolution=%d", preset.TargetDPI),
		fmt.Sprintf("-dMonoImageResolution=%d", preset.TargetDPI),
		fmt.Sprintf("-dJPEGQ=%d", quality),
	}
	if preset.Grayscale {
		args = append(args, "-sProcessColorModel=DeviceGray", "-sColorConversionStrategy=Gray")
	}
	if preset.Strategy == rebuild.StrategyRasterize {
		// pdfwrite has no direct rasterize mode; lowering the profile to
		// /screen is the closest lever.
		args[1] = "-dPDFSETTINGS=/screen"
	}
	args = append(args, "-sOutputFile="+output, input)
	return args
}

// parsePageLine matches Ghostscript's per-page "Page N" progress lines.
func parsePageLine(line string) (int, bool) {
	rest, ok := strings.CutPrefix(line, "Page ")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// parsePageRange matches "Processing pages X through Y." banner lines.
func parsePageRange(line string) (from, to int, ok bool) {
	rest, found := strings.CutPrefix(line, "Processing pages ")
	if !found {
		return 0, 0, false
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), ".")
	parts := strings.Split(rest, " through ")
	if len(parts) != 2 {
		return 0, 0, false
	}
	from, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	to, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || to < from {
		return 0, 0, false
	}
	return from, to, true
}
