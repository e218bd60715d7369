// Package imaging decodes probe images and prepares grayscale regions for
// quality scoring.
package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
)

// MaxImageSize is the largest encoded payload accepted, in bytes.
const MaxImageSize = 10 * 1024 * 1024

// DecodeBase64 accepts raw base64 or a data URL and returns the encoded image bytes.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, domain.ErrInvalidImage
	}
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return nil, domain.ErrInvalidImage
		}
		s = s[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// some clients strip the padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, domain.ErrInvalidImage.WithError(err)
		}
	}
	if len(data) == 0 || len(data) > MaxImageSize {
		return nil, domain.ErrInvalidImage
	}
	return data, nil
}

// Decode parses jpeg, png, gif, bmp or webp bytes.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, domain.ErrInvalidImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, domain.ErrInvalidImage
	}
	return img, nil
}

// Gray converts the part of img inside r to 8-bit luma using BT.601 weights.
// The rectangle is clipped to the image bounds and the result is rebased to
// the origin.
func Gray(img image.Image, r image.Rectangle) *image.Gray {
	r = r.Intersect(img.Bounds())
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	if r.Empty() {
		return out
	}

	rgba := image.NewRGBA(out.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, r.Min, draw.Src)

	for y := 0; y < r.Dy(); y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < r.Dx(); x++ {
			p := row[x*4 : x*4+3]
			l := 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
			out.Pix[y*out.Stride+x] = uint8(l + 0.5)
		}
	}
	return out
}
