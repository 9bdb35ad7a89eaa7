// Package watermark накладывает водяной знак на фото для пользователей
// без подписки. VIP получает чистый артефакт, это часть оффера.
package watermark

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Label текст водяного знака.
const Label = "@dreamgf_ru_bot"

const (
	stripHeight = 22
	padding     = 6
	jpegQuality = 85
)

// Apply рисует полупрозрачную плашку с подписью в нижней части
// изображения и возвращает результат как JPEG. Ошибка означает, что
// байты не декодируются как изображение; исходный артефакт при этом
// не модифицируется.
func Apply(artifact []byte) ([]byte, error) {
	const op = "watermark.Apply"

	src, _, err := image.Decode(bytes.NewReader(artifact))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	strip := image.Rect(bounds.Min.X, bounds.Max.Y-stripHeight, bounds.Max.X, bounds.Max.Y)
	draw.DrawMask(canvas, strip,
		image.NewUniform(color.Black), image.Point{},
		image.NewUniform(color.Alpha{A: 128}), image.Point{},
		draw.Over)

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot: fixed.P(
			bounds.Min.X+padding,
			bounds.Max.Y-(stripHeight-basicfont.Face7x13.Height)/2-padding/2,
		),
	}
	drawer.DrawString(Label)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out.Bytes(), nil
}
