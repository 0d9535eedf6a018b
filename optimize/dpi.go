// Package optimize estimates effective image resolution and recompresses
// image pixel data to a target density.
package optimize

import (
	"math"

	"github.com/wudi/pdfpress/extractor"
	"github.com/wudi/pdfpress/pages"
)

// EstimateDPI returns the effective resolution of an image placed on a page,
// assuming the image covers the full page area. The dominant axis wins: a
// tall scan on a short page still reports the density a resampler must match.
func EstimateDPI(img *extractor.Image, page *pages.Page) int {
	wIn := page.WidthInches()
	hIn := page.HeightInches()
	if wIn <= 0 || hIn <= 0 || img.Width <= 0 || img.Height <= 0 {
		return 0
	}
	dpi := math.Max(float64(img.Width)/wIn, float64(img.Height)/hIn)
	return int(math.Round(dpi))
}

// EstimateMaxDPI returns the highest effective DPI of an image across all
// pages that reference it. Shared images are resampled once, so the most
// demanding placement sets the target.
func EstimateMaxDPI(img *extractor.Image, tree *pages.Tree) int {
	max := 0
	for _, idx := range img.Pages {
		page, err := tree.Page(idx)
		if err != nil {
			continue
		}
		if dpi := EstimateDPI(img, page); dpi > max {
			max = dpi
		}
	}
	return max
}
