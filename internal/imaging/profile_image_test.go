package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func pngOfSize(t *testing.T, w, h int) *bytes.Buffer {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return &buf
}

func TestEncodeProfileImageScalesToPreviewWidth(t *testing.T) {
	encoded, err := EncodeProfileImage(pngOfSize(t, 600, 300))
	if err != nil {
		t.Fatalf("EncodeProfileImage: %v", err)
	}

	img, err := DecodeProfileImage(encoded)
	if err != nil {
		t.Fatalf("DecodeProfileImage: %v", err)
	}
	if got := img.Bounds(); got.Dx() != PreviewWidth || got.Dy() != 75 {
		t.Fatalf("expected %dx75 preview, got %dx%d", PreviewWidth, got.Dx(), got.Dy())
	}
}

func TestEncodeProfileImageRejectsNonImages(t *testing.T) {
	if _, err := EncodeProfileImage(strings.NewReader("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeProfileImageRejectsGarbage(t *testing.T) {
	if _, err := DecodeProfileImage("%%%"); err == nil {
		t.Fatal("expected base64 error")
	}
	if _, err := DecodeProfileImage("aGVsbG8="); err == nil {
		t.Fatal("expected image decode error")
	}
}

// pngHeaderClaiming re-stamps the IHDR of a tiny PNG so it declares w x h
// without carrying the pixels.
func pngHeaderClaiming(t *testing.T, w, h uint32) *bytes.Buffer {
	t.Helper()
	raw := pngOfSize(t, 1, 1).Bytes()
	// signature(8) + length(4) + "IHDR"(4), then width and height.
	binary.BigEndian.PutUint32(raw[16:20], w)
	binary.BigEndian.PutUint32(raw[20:24], h)
	binary.BigEndian.PutUint32(raw[29:33], crc32.ChecksumIEEE(raw[12:29]))
	return bytes.NewBuffer(raw)
}

func TestEncodeProfileImageRejectsOversizedDimensions(t *testing.T) {
	_, err := EncodeProfileImage(pngHeaderClaiming(t, 20000, 20000))
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}
