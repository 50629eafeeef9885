package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrMalformedImage - байты не являются поддерживаемым изображением
var ErrMalformedImage = errors.New("не удалось декодировать изображение")

// DefaultMaxPixels - предел width*height для декодирования (40 Мп)
const DefaultMaxPixels = 40_000_000

// Decode декодирует jpeg/png/gif/bmp/webp.
// Размер из заголовка проверяется до декодирования: изображение больше
// maxPixels отклоняется как ErrMalformedImage. maxPixels <= 0 - DefaultMaxPixels.
func Decode(data []byte, maxPixels int) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: пустой файл", ErrMalformedImage)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: нулевой размер", ErrMalformedImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d больше %d пикселей", ErrMalformedImage, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImage, err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: нулевой размер", ErrMalformedImage)
	}

	return img, nil
}

// ToRGB приводит изображение к RGBA с началом в (0,0).
// Если большая сторона больше maxSide - уменьшает с сохранением пропорций.
// maxSide <= 0 отключает уменьшение.
func ToRGB(img image.Image, maxSide int) *image.RGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if maxSide <= 0 || (width <= maxSide && height <= maxSide) {
		if rgba, ok := img.(*image.RGBA); ok && bounds.Min == (image.Point{}) {
			return rgba
		}
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
		return dst
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSide
		newHeight = int(float64(height) * float64(maxSide) / float64(width))
	} else {
		newHeight = maxSide
		newWidth = int(float64(width) * float64(maxSide) / float64(height))
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

// EncodeJPEG кодирует в трехканальный JPEG - формат, который ждет Python
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
		return nil, fmt.Errorf("ошибка кодирования JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
