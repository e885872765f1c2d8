package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
)

// jpegQuality matches typical dashcam frame re-encoding; answers do
// not depend on fine image detail.
const jpegQuality = 90

// Image holds a JPEG-encoded frame ready to send to a backend.
type Image struct {
	Data []byte
	MIME string
}

// FormatError reports a file that could not be understood as an image.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported image %s: %s", e.Path, e.Reason)
}

// LoadImage reads an image file and returns it as JPEG bytes. JPEG
// input passes through untouched; PNG and GIF are decoded and
// re-encoded (alpha is dropped the way the original JPEG conversion
// drops it).
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, &FormatError{Path: path, Reason: "empty file"}
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &FormatError{Path: path, Reason: err.Error()}
	}

	if format == "jpeg" {
		return &Image{Data: data, MIME: "image/jpeg"}, nil
	}

	var src image.Image
	switch format {
	case "png":
		src, err = png.Decode(bytes.NewReader(data))
	case "gif":
		src, err = gif.Decode(bytes.NewReader(data))
	default:
		return nil, &FormatError{Path: path, Reason: fmt.Sprintf("format %q", format)}
	}
	if err != nil {
		return nil, &FormatError{Path: path, Reason: err.Error()}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return &Image{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// Base64 returns the standard-encoded image bytes.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a base64 data URL, the form the
// OpenAI-compatible APIs accept inline.
func (i *Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIME, i.Base64())
}
