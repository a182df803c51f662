package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
)

const (
	PreviewWidth   = 150
	PreviewQuality = 50
)

// MaxSourcePixels caps width*height of an upload. Decoding allocates the
// full bitmap, so the header is checked first.
const MaxSourcePixels = 40_000_000

var (
	ErrEmptyImage    = errors.New("image has no pixels")
	ErrImageTooLarge = errors.New("image dimensions exceed limit")
)

// EncodeProfileImage scales the picture to a PreviewWidth wide preview,
// keeping the aspect ratio, and returns it as base64 JPEG.
func EncodeProfileImage(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read profile image: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode profile image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", ErrEmptyImage
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode profile image: %w", err)
	}

	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return "", ErrEmptyImage
	}

	height := bounds.Dy() * PreviewWidth / bounds.Dx()
	if height < 1 {
		height = 1
	}

	preview := image.NewRGBA(image.Rect(0, 0, PreviewWidth, height))
	draw.NearestNeighbor.Scale(preview, preview.Bounds(), src, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, preview, &jpeg.Options{Quality: PreviewQuality}); err != nil {
		return "", fmt.Errorf("encode profile image: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeProfileImage parses an image produced by EncodeProfileImage.
func DecodeProfileImage(encoded string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64 profile image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode profile image: %w", err)
	}
	return img, nil
}
