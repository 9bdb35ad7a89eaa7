package watermark_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamgf-ru/companion-bot/internal/watermark"
)

func testImage(t *testing.T, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	for x := 0; x < 120; x++ {
		for y := 0; y < 80; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	return buf.Bytes()
}

func TestApply_PNG(t *testing.T) {
	src := testImage(t, func(buf *bytes.Buffer, img image.Image) error {
		return png.Encode(buf, img)
	})

	marked, err := watermark.Apply(src)
	require.NoError(t, err)
	assert.NotEqual(t, src, marked)

	out, _, err := image.Decode(bytes.NewReader(marked))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 120, 80), out.Bounds(), "watermark must not resize the image")
}

func TestApply_JPEG(t *testing.T) {
	src := testImage(t, func(buf *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(buf, img, nil)
	})

	marked, err := watermark.Apply(src)
	require.NoError(t, err)
	assert.NotEqual(t, src, marked)
}

func TestApply_NotAnImage(t *testing.T) {
	_, err := watermark.Apply([]byte("definitely not pixels"))
	assert.Error(t, err)
}
