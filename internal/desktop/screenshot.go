package desktop

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// captureFunc writes a PNG of the full screen to path.
type captureFunc func(ctx context.Context, path string) error

// screenshotter owns the capture file lifecycle and the crop/scale pipeline.
// Each capture gets its own temp file, removed once read.
type screenshotter struct {
	dir   string
	scale Scaler
}

func (s *screenshotter) take(ctx context.Context, capture captureFunc, region *v1.Region) (string, error) {
	f, err := os.CreateTemp(s.dir, "compeek-screenshot-*.png")
	if err != nil {
		return "", fmt.Errorf("create screenshot file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	defer func() { _ = os.Remove(path) }()

	if err := capture(ctx, path); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read screenshot: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("screenshot capture produced an empty file")
	}

	if region == nil && !s.scale.Enabled() {
		return base64.StdEncoding.EncodeToString(raw), nil
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}

	var out image.Image
	if region != nil {
		out, err = crop(img, s.scale.RegionToScreen(*region))
		if err != nil {
			return "", err
		}
	} else {
		out = resize(img, s.scale.LogicalWidth, s.scale.LogicalHeight)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return "", fmt.Errorf("encode screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// crop cuts r out of img, clamped to the image bounds.
func crop(img image.Image, r v1.Region) (image.Image, error) {
	b := img.Bounds()
	rect := image.Rect(b.Min.X+r.X1, b.Min.Y+r.Y1, b.Min.X+r.X2, b.Min.Y+r.Y2).Intersect(b)
	if rect.Empty() {
		return nil, fmt.Errorf("zoom region [%d, %d, %d, %d] is outside the %dx%d screen",
			r.X1, r.Y1, r.X2, r.Y2, b.Dx(), b.Dy())
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst, nil
}

func resize(img image.Image, width, height int) image.Image {
	if b := img.Bounds(); b.Dx() == width && b.Dy() == height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
