package attend

import (
	"bytes"
	"image"
	"image/jpeg"
)

// Encoder turns a captured surface into upload bytes.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)

	// ContentType is the MIME type of the encoded bytes.
	ContentType() string
}

// JPEGEncoder encodes baseline JPEG.
type JPEGEncoder struct {
	Quality int
}

// Encode encodes img at the configured quality.
func (e JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	q := e.Quality
	if q <= 0 {
		q = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ContentType returns image/jpeg.
func (JPEGEncoder) ContentType() string {
	return "image/jpeg"
}

// EncoderFunc adapts a function to Encoder with a JPEG content type.
type EncoderFunc func(img image.Image) ([]byte, error)

// Encode calls f.
func (f EncoderFunc) Encode(img image.Image) ([]byte, error) {
	return f(img)
}

// ContentType returns image/jpeg.
func (EncoderFunc) ContentType() string {
	return "image/jpeg"
}
