package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	// Decoders registered with image.Decode.
	_ "image/gif"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Profile photos are cropped to a square and re-encoded as JPEG.
const (
	AvatarSize    = 500
	AvatarQuality = 90
)

// DetectImage sniffs data and returns its MIME type, or ErrNotImage when the
// bytes are not an image. Declared content types are never trusted.
func DetectImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrNotImage
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}
	return mt.String(), nil
}

// NormalizeAvatar decodes an uploaded photo, scales and centre-crops it to
// AvatarSize x AvatarSize and encodes the result as JPEG.
func NormalizeAvatar(data []byte) ([]byte, error) {
	if _, err := DetectImage(data); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, AvatarSize, AvatarSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, coverRect(src.Bounds()), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: AvatarQuality}); err != nil {
		return nil, fmt.Errorf("media: encoding avatar: %w", err)
	}
	return buf.Bytes(), nil
}

// coverRect is the largest centred square inside b.
func coverRect(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	side := min(w, h)
	x0 := b.Min.X + (w-side)/2
	y0 := b.Min.Y + (h-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// DecodeDataURL parses a base64 "data:<type>;base64,<payload>" URL as sent by
// the mobile client for book covers. The payload must sniff as an image; the
// sniffed type is returned.
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return nil, "", fmt.Errorf("%w: expected a data URL", ErrNotImage)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("%w: expected base64 data URL", ErrNotImage)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: bad base64 payload: %v", ErrNotImage, err)
	}
	contentType, err := DetectImage(data)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}
