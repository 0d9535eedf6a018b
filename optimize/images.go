package optimize

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"

	"github.com/wudi/pdfpress/extractor"
)

// resampleThreshold skips scaling when the computed factor is close enough
// to 1 that resampling would only add generation loss.
const resampleThreshold = 0.95

// Config controls how images are recompressed.
type Config struct {
	TargetDPI   int
	JPEGQuality float64 // 0..1, mapped onto the encoder's 1..100 range
	Grayscale   bool
}

// Result holds a recompressed image ready for substitution.
type Result struct {
	Data   []byte
	Width  int
	Height int
	Gray   bool
}

// Downsample scales an image to the target density and re-encodes it as JPEG.
// currentDPI at or below the target leaves dimensions unchanged; the image is
// still re-encoded at the configured quality.
func Downsample(img *extractor.Image, currentDPI int, cfg Config) (*Result, error) {
	if img.Width < 1 || img.Height < 1 {
		return nil, fmt.Errorf("degenerate image %dx%d", img.Width, img.Height)
	}
	if len(img.Pix) < img.Width*img.Height*img.Components {
		return nil, fmt.Errorf("short pixel buffer for %dx%d image", img.Width, img.Height)
	}

	scale := 1.0
	if cfg.TargetDPI > 0 && currentDPI > 0 {
		scale = float64(cfg.TargetDPI) / float64(currentDPI)
	}
	if scale > 1 {
		scale = 1
	}

	src := toNativeImage(img, cfg.Grayscale)

	if scale <= resampleThreshold {
		dstW := int(math.Round(float64(img.Width) * scale))
		dstH := int(math.Round(float64(img.Height) * scale))
		if dstW < 1 || dstH < 1 {
			return nil, fmt.Errorf("target dimensions %dx%d degenerate at scale %.3f", dstW, dstH, scale)
		}
		src = rescale(src, dstW, dstH, cfg.Grayscale)
	}

	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: jpegQuality(cfg.JPEGQuality)}
	if err := jpeg.Encode(&buf, src, opts); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	b := src.Bounds()
	_, isGray := src.(*image.Gray)
	return &Result{
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
		Gray:   isGray,
	}, nil
}

// jpegQuality maps a 0..1 factor onto the encoder scale. Out-of-range values
// clamp rather than error so presets stay forgiving.
func jpegQuality(q float64) int {
	if q <= 0 {
		return 1
	}
	if q >= 1 {
		return 100
	}
	v := int(math.Round(q * 100))
	if v < 1 {
		v = 1
	}
	return v
}

func rescale(src image.Image, w, h int, gray bool) image.Image {
	if gray {
		dst := image.NewGray(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		return dst
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// toNativeImage wraps extracted samples in an image.Image without copying
// where the layout allows it.
func toNativeImage(img *extractor.Image, grayscale bool) image.Image {
	rect := image.Rect(0, 0, img.Width, img.Height)

	switch img.Components {
	case 1:
		g := &image.Gray{Pix: img.Pix, Stride: img.Width, Rect: rect}
		return g
	case 3:
		if grayscale {
			return rgbToGray(img.Pix, img.Width, img.Height)
		}
		rgba := image.NewRGBA(rect)
		for i := 0; i < img.Width*img.Height; i++ {
			rgba.Pix[i*4] = img.Pix[i*3]
			rgba.Pix[i*4+1] = img.Pix[i*3+1]
			rgba.Pix[i*4+2] = img.Pix[i*3+2]
			rgba.Pix[i*4+3] = 0xff
		}
		return rgba
	case 4:
		cmyk := &image.CMYK{Pix: img.Pix, Stride: img.Width * 4, Rect: rect}
		if grayscale {
			return flattenGray(cmyk)
		}
		return cmyk
	}
	// Should not happen after extraction; fall back to a white canvas.
	return image.NewGray(rect)
}

func rgbToGray(pix []byte, w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		r := int(pix[i*3])
		gr := int(pix[i*3+1])
		b := int(pix[i*3+2])
		// ITU-R BT.601 luma.
		g.Pix[i] = byte((299*r + 587*gr + 114*b) / 1000)
	}
	return g
}

func flattenGray(src image.Image) *image.Gray {
	b := src.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, src, b.Min, draw.Src)
	return g
}
