// Package native implements the in-process compression pipeline: parse,
// extract, recompress, rebuild, write.
package native

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/wudi/pdfpress/engine"
	"github.com/wudi/pdfpress/extractor"
	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/observability"
	"github.com/wudi/pdfpress/optimize"
	"github.com/wudi/pdfpress/pages"
	"github.com/wudi/pdfpress/parser"
	"github.com/wudi/pdfpress/rebuild"
	"github.com/wudi/pdfpress/writer"
)

// Config tunes the pipeline. The zero value is usable.
type Config struct {
	// Limits bounds filter decompression. Zero means no limit.
	Limits filters.Limits
	// MinDimension skips recompression of images smaller than this on
	// either axis.
	MinDimension int
	Logger       observability.Logger
}

// Engine runs the whole pipeline in-process with no external binaries.
type Engine struct {
	cfg Config
	log observability.Logger
}

func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Engine{cfg: cfg, log: log}
}

func (e *Engine) Name() string      { return "native" }
func (e *Engine) IsAvailable() bool { return true }

// Compress runs one isolated pipeline pass. Progress is reported as one unit
// per image (substitution) or per page (rasterization), plus a final unit
// for the write.
func (e *Engine) Compress(ctx context.Context, input, output string, preset engine.Preset, onProgress engine.ProgressFunc) error {
	if engine.SamePath(input, output) {
		return fmt.Errorf("%w: output path equals input path", engine.ErrOutputWrite)
	}
	if _, err := os.Stat(input); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", input, engine.ErrInputNotFound)
		}
		return fmt.Errorf("stat input: %w", err)
	}

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	p := parser.New(parser.Config{Limits: e.cfg.Limits})
	doc, err := p.Parse(ctx, f)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, parser.ErrEncrypted) {
			return &engine.UnsupportedDocumentError{Reason: "encrypted document"}
		}
		return &engine.UnsupportedDocumentError{Reason: err.Error()}
	}

	tree, err := pages.Load(doc)
	if err != nil {
		return &engine.UnsupportedDocumentError{Reason: err.Error()}
	}

	ext := extractor.New(doc, tree, extractor.Config{
		MinDimension: e.cfg.MinDimension,
		Limits:       e.cfg.Limits,
		Logger:       e.log,
	})
	images, err := ext.Extract(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &engine.ProcessingError{Detail: "image extraction", Err: err}
	}

	total := len(images) + 1
	if preset.Strategy == rebuild.StrategyRasterize {
		total = tree.Count() + 1
	}
	current := 0
	report := func(msg string) {
		current++
		if onProgress != nil {
			onProgress(engine.Progress{Current: current, Total: total, Message: msg})
		}
	}

	rb := rebuild.New(rebuild.Config{
		Strategy: preset.Strategy,
		Optimize: optimize.Config{
			TargetDPI:   preset.TargetDPI,
			JPEGQuality: preset.JPEGQuality,
			Grayscale:   preset.Grayscale,
		},
		Strict: preset.Strict,
		Logger: e.log,
		OnStep: report,
	})
	stats, err := rb.Run(ctx, doc, tree, images)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &engine.ProcessingError{Detail: "rebuild", Err: err}
	}

	doc.Metadata.Producer = "pdfpress"
	stampProducer(doc)

	w := writer.New(writer.Config{Compress: true})
	if err := w.WriteFile(output, doc); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrOutputWrite, err)
	}
	report("write")

	e.log.Info("compressed",
		observability.String("input", input),
		observability.String("output", output),
		observability.String("preset", preset.ID),
		observability.Int("images_replaced", stats.ImagesReplaced),
		observability.Int("images_skipped", stats.ImagesSkipped),
		observability.Int("pages_rasterized", stats.PagesRasterized),
		observability.Int("objects_pruned", stats.ObjectsPruned))
	return nil
}

// stampProducer records this tool in the document info dictionary, creating
// one when the file has none.
func stampProducer(doc *raw.Document) {
	producer := raw.Str([]byte("pdfpress"))
	if doc.Trailer != nil {
		if infoObj, ok := doc.Trailer.Get(raw.NameLiteral("Info")); ok {
			if info, ok := doc.Resolve(infoObj).(raw.Dictionary); ok {
				info.Set(raw.NameLiteral("Producer"), producer)
				return
			}
		}
	}
	info := raw.Dict()
	info.Set(raw.NameLiteral("Producer"), producer)
	ref := raw.ObjectRef{Num: doc.MaxObjectNum() + 1}
	doc.Objects[ref] = info
	if doc.Trailer != nil {
		doc.Trailer.Set(raw.NameLiteral("Info"), raw.Ref(ref.Num, ref.Gen))
	}
}
