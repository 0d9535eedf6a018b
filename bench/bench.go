// Package bench measures compression engines against each other over a grid
// of presets and input files.
package bench

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/wudi/pdfpress/engine"
	"github.com/wudi/pdfpress/observability"
)

// Result records one engine × preset × file cell.
type Result struct {
	Engine     string
	Preset     string
	Input      string
	InputSize  int64
	OutputSize int64
	Elapsed    time.Duration
	Success    bool
	Err        string
}

// Ratio returns output/input size, or 1 when unknown.
func (r Result) Ratio() float64 {
	if !r.Success || r.InputSize == 0 {
		return 1
	}
	return float64(r.OutputSize) / float64(r.InputSize)
}

// Config for a benchmark run.
type Config struct {
	Engines []engine.Engine
	Presets []engine.Preset
	Files   []string
	// WorkDir receives the output files. Empty means a fresh temp dir that
	// is removed when the run ends.
	WorkDir string
	// KeepOutputs leaves the compressed files on disk for inspection.
	KeepOutputs bool
	Logger      observability.Logger
}

// Runner executes the full grid sequentially.
type Runner struct {
	cfg Config
	log observability.Logger
}

func NewRunner(cfg Config) *Runner {
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Runner{cfg: cfg, log: log}
}

// Run walks every engine × preset × file combination. Unavailable engines
// are skipped wholesale; individual failures land in the result row.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	workDir := r.cfg.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "pdfpress-bench-*")
		if err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
		workDir = dir
		if !r.cfg.KeepOutputs {
			defer os.RemoveAll(dir)
		}
	}

	var results []Result
	for _, eng := range r.cfg.Engines {
		if !eng.IsAvailable() {
			r.log.Warn("engine skipped", observability.String("engine", eng.Name()))
			continue
		}
		for _, preset := range r.cfg.Presets {
			for _, input := range r.cfg.Files {
				select {
				case <-ctx.Done():
					return results, ctx.Err()
				default:
				}
				results = append(results, r.runOne(ctx, eng, preset, input, workDir))
			}
		}
	}
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, eng engine.Engine, preset engine.Preset, input, workDir string) Result {
	result := Result{Engine: eng.Name(), Preset: preset.ID, Input: filepath.Base(input)}

	if fi, err := os.Stat(input); err == nil {
		result.InputSize = fi.Size()
	}

	output := filepath.Join(workDir, fmt.Sprintf("%s-%s-%s", eng.Name(), preset.ID, filepath.Base(input)))
	start := time.Now()
	err := eng.Compress(ctx, input, output, preset, nil)
	result.Elapsed = time.Since(start)

	if err != nil {
		result.Err = err.Error()
		return result
	}
	result.Success = true
	if fi, err := os.Stat(output); err == nil {
		result.OutputSize = fi.Size()
	}
	if !r.cfg.KeepOutputs {
		os.Remove(output)
	}
	return result
}

// WriteTable renders results as an aligned text table.
func WriteTable(w io.Writer, results []Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENGINE\tPRESET\tFILE\tIN\tOUT\tRATIO\tTIME\tSTATUS")
	for _, res := range results {
		status := "ok"
		if !res.Success {
			status = res.Err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
			res.Engine, res.Preset, res.Input,
			formatSize(res.InputSize), formatSize(res.OutputSize),
			res.Ratio(), res.Elapsed.Round(time.Millisecond), status)
	}
	return tw.Flush()
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%dB", n)
}
