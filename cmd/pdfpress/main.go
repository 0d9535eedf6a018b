// Command pdfpress compresses PDF files and benchmarks compression engines.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wudi/pdfpress/bench"
	"github.com/wudi/pdfpress/engine"
	"github.com/wudi/pdfpress/engine/ghostscript"
	"github.com/wudi/pdfpress/engine/native"
	"github.com/wudi/pdfpress/engine/pdfcpu"
	"github.com/wudi/pdfpress/observability"
	"github.com/wudi/pdfpress/rebuild"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "compress":
		err = runCompress(ctx, os.Args[2:])
	case "bench":
		err = runBench(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfpress: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: pdfpress <command> [flags]

Commands:
  compress    Compress a PDF file
  bench       Benchmark engines over a set of files
`)
}

func runCompress(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compress", flag.ExitOnError)
	presetID := fs.String("preset", "medium", "Compression preset: tiny, small, medium, large")
	engineName := fs.String("engine", "native", "Engine: native, ghostscript, pdfcpu")
	grayscale := fs.Bool("grayscale", false, "Convert images to grayscale")
	rasterize := fs.Bool("rasterize", false, "Flatten each page to a single image")
	strict := fs.Bool("strict", false, "Fail on recoverable per-image problems")
	verbose := fs.Bool("v", false, "Verbose logging")
	quiet := fs.Bool("q", false, "Suppress progress output")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfpress compress [flags] <input.pdf> <output.pdf>\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("expected input and output paths")
	}
	input, output := fs.Arg(0), fs.Arg(1)

	preset, ok := engine.PresetByID(*presetID)
	if !ok {
		return fmt.Errorf("unknown preset %q", *presetID)
	}
	preset.Grayscale = *grayscale
	preset.Strict = *strict
	if *rasterize {
		preset.Strategy = rebuild.StrategyRasterize
	}

	log := newLogger(*verbose)
	eng, err := buildEngine(*engineName, log)
	if err != nil {
		return err
	}
	if !eng.IsAvailable() {
		return fmt.Errorf("engine %s: %w", eng.Name(), engine.ErrEngineUnavailable)
	}

	var onProgress engine.ProgressFunc
	if !*quiet {
		onProgress = func(p engine.Progress) {
			fmt.Fprintf(os.Stderr, "\r%d/%d %s", p.Current, p.Total, p.Message)
			if p.Current == p.Total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	if err := eng.Compress(ctx, input, output, preset, onProgress); err != nil {
		return err
	}

	inSize := fileSize(input)
	outSize := fileSize(output)
	if inSize > 0 {
		fmt.Printf("%s: %d -> %d bytes (%.1f%%)\n", output, inSize, outSize, 100*float64(outSize)/float64(inSize))
	}
	return nil
}

func runBench(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	engineList := fs.String("engines", "native,pdfcpu", "Comma-separated engines to benchmark")
	presetList := fs.String("presets", "small,medium", "Comma-separated presets")
	keep := fs.Bool("keep", false, "Keep compressed outputs")
	workDir := fs.String("out", "", "Directory for compressed outputs")
	history := fs.String("history", "", "Sqlite file for run history (optional)")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfpress bench [flags] <file.pdf>...\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("no input files")
	}

	log := newLogger(*verbose)

	var engines []engine.Engine
	for _, name := range strings.Split(*engineList, ",") {
		eng, err := buildEngine(strings.TrimSpace(name), log)
		if err != nil {
			return err
		}
		engines = append(engines, eng)
	}

	var presets []engine.Preset
	for _, id := range strings.Split(*presetList, ",") {
		preset, ok := engine.PresetByID(strings.TrimSpace(id))
		if !ok {
			return fmt.Errorf("unknown preset %q", id)
		}
		presets = append(presets, preset)
	}

	runner := bench.NewRunner(bench.Config{
		Engines:     engines,
		Presets:     presets,
		Files:       fs.Args(),
		WorkDir:     *workDir,
		KeepOutputs: *keep,
		Logger:      log,
	})
	results, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if err := bench.WriteTable(os.Stdout, results); err != nil {
		return err
	}

	if *history != "" {
		store, err := bench.OpenStore(*history)
		if err != nil {
			return err
		}
		id, err := store.SaveRun(results)
		if err != nil {
			return err
		}
		fmt.Printf("saved run %d to %s\n", id, *history)
	}
	return nil
}

func buildEngine(name string, log observability.Logger) (engine.Engine, error) {
	switch name {
	case "native":
		return native.New(native.Config{Logger: log}), nil
	case "ghostscript", "gs":
		return ghostscript.New(ghostscript.Config{Logger: log}), nil
	case "pdfcpu":
		return pdfcpu.New(pdfcpu.Config{Logger: log}), nil
	}
	return nil, fmt.Errorf("unknown engine %q", name)
}

func newLogger(verbose bool) observability.Logger {
	min := observability.LevelInfo
	if verbose {
		min = observability.LevelDebug
	}
	return observability.NewText(os.Stderr, min)
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
