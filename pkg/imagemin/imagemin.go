// Package imagemin shrinks GIF, JPEG, PNG and SVG files. The result is never larger than the
// input: if re-encoding doesn't help, the original bytes are kept.
package imagemin

import (
	"bytes"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
)

// Kind identifies the optimizer responsible for a file.
type Kind string

const (
	KindNone Kind = ""
	KindGIF  Kind = "gif"
	KindJPEG Kind = "jpeg"
	KindPNG  Kind = "png"
	KindSVG  Kind = "svg"
)

var kindByExt = map[string]Kind{
	".gif":  KindGIF,
	".jpg":  KindJPEG,
	".jpeg": KindJPEG,
	".png":  KindPNG,
	".svg":  KindSVG,
}

const svgMime = "image/svg+xml"

// ErrMalformed is returned for files that claim a supported format but can't be decoded.
var ErrMalformed = eris.New("malformed image")

// Options mirror the optimizer settings of the configuration.
type Options struct {
	JPEGQuality int
	// JPEGProgressive is accepted for compatibility; the encoder always writes baseline JPEGs.
	JPEGProgressive bool
	// PNGLevel ranges from 0 (default compression) to 7; 3 and above use the best compression.
	PNGLevel int
	// GIFInterlaced is accepted for compatibility; GIFs are written non-interlaced.
	GIFInterlaced    bool
	SVGRemoveViewBox bool
	SVGCleanupIDs    bool
}

// Optimizer applies the format specific optimizations.
type Optimizer struct {
	opts  Options
	min   *minify.M
	cache *Cache
}

// New creates an Optimizer. cache may be nil.
func New(opts Options, cache *Cache) *Optimizer {
	m := minify.New()
	m.Add(svgMime, &svg.Minifier{})

	return &Optimizer{opts: opts, min: m, cache: cache}
}

// KindOf returns the optimizer kind for name based on its extension.
func KindOf(name string) Kind {
	return kindByExt[strings.ToLower(filepath.Ext(name))]
}

func (o *Optimizer) profile(kind Kind) string {
	switch kind {
	case KindJPEG:
		return fmt.Sprintf("jpeg:q%d", o.opts.JPEGQuality)
	case KindPNG:
		return fmt.Sprintf("png:l%d", o.opts.PNGLevel)
	default:
		return string(kind)
	}
}

// Optimize returns the optimized content of the file name. Unsupported formats are returned
// unchanged. For malformed files, the original data is returned together with an error
// wrapping ErrMalformed.
func (o *Optimizer) Optimize(name string, data []byte) ([]byte, error) {
	kind := KindOf(name)
	if kind == KindNone || len(data) == 0 {
		return data, nil
	}

	profile := o.profile(kind)
	if o.cache != nil {
		if result, ok := o.cache.Get(profile, data); ok {
			return result, nil
		}
	}

	var result []byte
	var err error

	switch kind {
	case KindGIF:
		result, err = o.optimizeGIF(data)
	case KindJPEG:
		result, err = o.optimizeJPEG(data)
	case KindPNG:
		result, err = o.optimizePNG(data)
	case KindSVG:
		result, err = o.optimizeSVG(data)
	}

	if err != nil {
		return data, eris.Wrapf(ErrMalformed, "%s: %s", name, err)
	}

	if len(result) >= len(data) {
		result = data
	}

	if o.cache != nil {
		// the cache is only a memo; failing to store a result doesn't affect the output
		_ = o.cache.Put(profile, data, result)
	}

	return result, nil
}

func (o *Optimizer) optimizeGIF(data []byte) ([]byte, error) {
	img, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err = gif.EncodeAll(&buf, img); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (o *Optimizer) optimizeJPEG(data []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.opts.JPEGQuality}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (o *Optimizer) optimizePNG(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	switch {
	case o.opts.PNGLevel >= 3:
		enc.CompressionLevel = png.BestCompression
	case o.opts.PNGLevel > 0:
		enc.CompressionLevel = png.BestSpeed
	}

	var buf bytes.Buffer
	if err = enc.Encode(&buf, img); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (o *Optimizer) optimizeSVG(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.min.Minify(svgMime, &buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
