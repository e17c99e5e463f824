package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/scribblemap/arcapture/internal/annotation"
	"github.com/scribblemap/arcapture/internal/drawing"
)

// DefaultThumbnailWidth bounds popup thumbnails, in pixels.
const DefaultThumbnailWidth = 200

// PayloadBuilder turns annotations into marker popups.
type PayloadBuilder struct {
	ThumbnailWidth int
}

// Build returns the popup for a. A thumbnail that cannot be produced is
// left empty; the full image is always attached.
func (b PayloadBuilder) Build(a annotation.Annotation) Payload {
	p := Payload{
		Title:        PopupTitle,
		AnnotationID: a.ID,
		Image:        a.Image,
		CreatedAt:    a.CreatedAt,
	}
	if thumb, err := Thumbnail(a.Image, b.width()); err == nil {
		p.Thumbnail = thumb
	}
	return p
}

func (b PayloadBuilder) width() int {
	if b.ThumbnailWidth <= 0 {
		return DefaultThumbnailWidth
	}
	return b.ThumbnailWidth
}

// Thumbnail scales img down to at most maxWidth pixels wide, keeping the
// aspect ratio. Images already narrow enough are returned unchanged.
func Thumbnail(img drawing.RasterImage, maxWidth int) (drawing.RasterImage, error) {
	raw, err := img.Bytes()
	if err != nil {
		return "", err
	}
	src, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	bounds := src.Bounds()
	if maxWidth <= 0 || bounds.Dx() <= maxWidth {
		return img, nil
	}

	h := bounds.Dy() * maxWidth / bounds.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", fmt.Errorf("encoding thumbnail: %w", err)
	}
	return drawing.NewRasterImage(buf.Bytes()), nil
}
