package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // phone uploads are often webp
)

// maxSurfaceCap bounds the surface when MaxSurfacePixels is unset.
const maxSurfaceCap = 1 << 31

// Preprocessor turns a photo into an upscaled black/white raster that is
// easier for the engine to read.
type Preprocessor struct {
	ScaleFactor      int
	ContrastFactor   float64
	Threshold        float64
	MaxSurfacePixels int
}

// NewPreprocessor builds a Preprocessor from the pipeline config.
func NewPreprocessor(cfg Config) Preprocessor {
	return Preprocessor{
		ScaleFactor:      cfg.ScaleFactor,
		ContrastFactor:   cfg.ContrastFactor,
		Threshold:        cfg.Threshold,
		MaxSurfacePixels: cfg.MaxSurfacePixels,
	}
}

// DecodeImage decodes any registered raster format, honouring the EXIF
// orientation the way a browser bitmap decode does.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode image: empty payload")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Preprocess draws src onto a ScaleFactor× surface and binarizes it:
// luminance, contrast stretch around 128, then a global threshold.
// Alpha is carried over from the drawn surface.
func (p Preprocessor) Preprocess(src image.Image) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source image", ErrRenderingUnavailable)
	}
	if p.ScaleFactor < 1 {
		return nil, fmt.Errorf("%w: scale factor %d", ErrRenderingUnavailable, p.ScaleFactor)
	}
	w, h, err := p.surfaceSize(src.Bounds())
	if err != nil {
		return nil, err
	}

	surface := imaging.Resize(src, w, h, imaging.Linear)
	return imaging.AdjustFunc(surface, func(c color.NRGBA) color.NRGBA {
		v := p.binarize(c)
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	}), nil
}

// surfaceSize scales the source bounds, refusing surfaces above
// MaxSurfacePixels (maxSurfaceCap when unset). Every product is bounded by
// the limit first so huge scale factors cannot overflow.
func (p Preprocessor) surfaceSize(b image.Rectangle) (int, int, error) {
	dx, dy := int64(b.Dx()), int64(b.Dy())
	if dx <= 0 || dy <= 0 {
		return 0, 0, fmt.Errorf("%w: empty image %dx%d", ErrRenderingUnavailable, dx, dy)
	}
	limit := int64(p.MaxSurfacePixels)
	if limit <= 0 {
		limit = maxSurfaceCap
	}
	s := int64(p.ScaleFactor)
	if dx > limit/s || dy > limit/s {
		return 0, 0, fmt.Errorf("%w: %dx%d at scale %d exceeds %d pixels", ErrRenderingUnavailable, dx, dy, s, limit)
	}
	w, h := dx*s, dy*s
	if w > limit/h {
		return 0, 0, fmt.Errorf("%w: surface %dx%d exceeds %d pixels", ErrRenderingUnavailable, w, h, limit)
	}
	return int(w), int(h), nil
}

// binarize maps one pixel to 0 or 255.
func (p Preprocessor) binarize(c color.NRGBA) uint8 {
	l := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
	l = (l-128)*p.ContrastFactor + 128
	if l < 0 {
		l = 0
	} else if l > 255 {
		l = 255
	}
	if l > p.Threshold {
		return 255
	}
	return 0
}

// encodePNG serializes a raster for engines that take encoded bytes.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode raster: %w", err)
	}
	return buf.Bytes(), nil
}
