// Package rebuild reassembles a document after its images have been
// recompressed. Two strategies exist: substitution swaps image streams in
// place, rasterization replaces each page with a single flattened image.
package rebuild

import (
	"context"
	"fmt"

	"github.com/wudi/pdfpress/extractor"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/observability"
	"github.com/wudi/pdfpress/optimize"
	"github.com/wudi/pdfpress/pages"
)

// Strategy selects how the output document is assembled.
type Strategy int

const (
	// StrategySubstitute replaces individual image objects and leaves the
	// rest of the document untouched.
	StrategySubstitute Strategy = iota
	// StrategyRasterize renders every page to a single image. Text and
	// vector content are dropped; only raster placements survive.
	StrategyRasterize
)

func (s Strategy) String() string {
	if s == StrategyRasterize {
		return "rasterize"
	}
	return "substitute"
}

// Config controls the rebuild pass.
type Config struct {
	Strategy Strategy
	Optimize optimize.Config
	// Strict aborts on malformed content streams instead of leaving the
	// affected page as-is.
	Strict bool
	Logger observability.Logger
	// OnStep, when set, is invoked after each unit of work: once per image
	// under substitution, once per page under rasterization.
	OnStep func(message string)
}

func (r *Rebuilder) step(message string) {
	if r.cfg.OnStep != nil {
		r.cfg.OnStep(message)
	}
}

// Stats reports what the rebuild changed.
type Stats struct {
	ImagesReplaced  int
	ImagesSkipped   int
	PagesRasterized int
	ObjectsPruned   int
}

// Rebuilder mutates a raw document in place.
type Rebuilder struct {
	cfg Config
	log observability.Logger
}

func New(cfg Config) *Rebuilder {
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Rebuilder{cfg: cfg, log: log}
}

// Run applies the configured strategy and sweeps objects the document no
// longer references. The page count and every page's MediaBox are preserved
// by both strategies.
func (r *Rebuilder) Run(ctx context.Context, doc *raw.Document, tree *pages.Tree, images []*extractor.Image) (*Stats, error) {
	var stats *Stats
	var err error
	switch r.cfg.Strategy {
	case StrategySubstitute:
		stats, err = r.substitute(ctx, doc, tree, images)
	case StrategyRasterize:
		stats, err = r.rasterize(ctx, doc, tree, images)
	default:
		return nil, fmt.Errorf("unknown strategy %d", r.cfg.Strategy)
	}
	if err != nil {
		return nil, err
	}
	stats.ObjectsPruned = pruneUnreachable(doc)
	return stats, nil
}
