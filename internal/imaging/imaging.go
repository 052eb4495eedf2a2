// Package imaging normalises uploaded item artwork: it sniffs the format,
// bounds the size, downscales large images and re-encodes them as JPEG.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

// MaxDimension is the default maximum width or height of stored artwork.
const MaxDimension = 1024

// MaxUploadBytes bounds the size of an accepted upload.
const MaxUploadBytes = 10 << 20

// JPEGQuality is the compression quality for JPEG output.
const JPEGQuality = 85

// ErrTooLarge is returned when an upload exceeds MaxUploadBytes.
var ErrTooLarge = errors.New("image too large")

// ErrUnsupported is returned for inputs that are not JPEG or PNG.
var ErrUnsupported = errors.New("unsupported image format")

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Artwork is a processed item image.
type Artwork struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Process reads an image, downscales it so neither side exceeds maxDim
// (MaxDimension when maxDim <= 0) and re-encodes it as JPEG. The format is
// detected from the bytes, never from client headers.
func Process(r io.Reader, maxDim int) (*Artwork, error) {
	if maxDim <= 0 {
		maxDim = MaxDimension
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, ErrTooLarge
	}

	detected := http.DetectContentType(data)
	if !allowedMIME[detected] {
		return nil, fmt.Errorf("%w: %s (only JPEG and PNG accepted)", ErrUnsupported, detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	img = downscale(img, maxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	b := img.Bounds()
	return &Artwork{
		Data:   buf.Bytes(),
		MIME:   "image/jpeg",
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// fit returns w x h scaled so the longer side equals maxDim, preserving the
// aspect ratio. Sides never drop below one pixel.
func fit(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	newW, newH := maxDim, maxDim
	if w > h {
		newH = h * maxDim / w
	} else {
		newW = w * maxDim / h
	}
	return max(newW, 1), max(newH, 1)
}

// downscale resizes with Catmull-Rom interpolation, returning img unchanged
// when it already fits.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	newW, newH := fit(bounds.Dx(), bounds.Dy(), maxDim)
	if newW == bounds.Dx() && newH == bounds.Dy() {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
