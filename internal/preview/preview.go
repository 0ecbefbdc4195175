// Package preview renders the public preview blob for image content: a
// downscaled, blurred copy that teases the full image without revealing
// it.
package preview

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/liamg/magic"
)

// ErrNotAnImage means the payload did not sniff as a supported image
// format.
var ErrNotAnImage = errors.New("preview: payload is not a supported image")

var imageExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"bmp":  true,
	"tiff": true,
	"webp": true,
}

// Options controls the rendered preview.
type Options struct {
	// MaxWidth bounds the preview width in pixels, 512 when zero.
	MaxWidth int

	// BlurSigma is the gaussian blur radius, 8 when zero. Zero output
	// blur would leak the full image at reduced resolution.
	BlurSigma float64

	// JPEGQuality is the output quality, 70 when zero.
	JPEGQuality int
}

// Renderer turns clear image bytes into preview bytes.
type Renderer struct {
	opts Options
}

// NewRenderer creates a Renderer with the given options.
func NewRenderer(opts Options) *Renderer {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 512
	}
	if opts.BlurSigma <= 0 {
		opts.BlurSigma = 8
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 70
	}
	return &Renderer{opts: opts}
}

// Render sniffs, decodes, downscales and blurs the payload, returning
// JPEG bytes. Non-image payloads fail with ErrNotAnImage.
func (r *Renderer) Render(data []byte) ([]byte, error) {
	if !sniffsAsImage(data) {
		return nil, ErrNotAnImage
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	if img.Bounds().Dx() > r.opts.MaxWidth {
		img = imaging.Resize(img, r.opts.MaxWidth, 0, imaging.Lanczos)
	}
	img = imaging.Blur(img, r.opts.BlurSigma)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(r.opts.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("preview: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// sniffsAsImage checks the payload's magic bytes. The decode step would
// catch non-images too, but sniffing first gives a cleaner error for the
// common case of an article body sent with the wrong kind.
func sniffsAsImage(data []byte) bool {
	head := data
	if len(head) > 50 {
		head = head[:50]
	}
	ft, err := magic.Lookup(head)
	if err != nil || ft == nil {
		return false
	}
	return imageExtensions[ft.Extension]
}
