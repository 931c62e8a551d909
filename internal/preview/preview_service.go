package preview

import (
	"fmt"

	"github.com/h2non/bimg"
)

const (
	maxImageSize = 512 // максимальная сторона миниатюры в пикселях
	jpegQuality  = 85  // качество JPEG
)

// Thumbnailer строит JPEG-миниатюры изображений датасета через libvips
type Thumbnailer struct {
	maxSize int
	quality int
}

// NewThumbnailer создает генератор миниатюр с размерами по умолчанию
func NewThumbnailer() *Thumbnailer {
	return &Thumbnailer{
		maxSize: maxImageSize,
		quality: jpegQuality,
	}
}

// Thumbnail уменьшает изображение с сохранением пропорций и перекодирует в JPEG
func (t *Thumbnailer) Thumbnail(data []byte) ([]byte, error) {
	image := bimg.NewImage(data)

	// Получаем текущие размеры
	size, err := image.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to get image size: %w", err)
	}

	width, height := calculateNewDimensions(size.Width, size.Height, t.maxSize)

	processed, err := image.Process(bimg.Options{
		Width:   width,
		Height:  height,
		Quality: t.quality,
		Type:    bimg.JPEG,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}

	return processed, nil
}

// calculateNewDimensions вписывает изображение в квадрат maxSize, не увеличивая маленькие
func calculateNewDimensions(width, height, maxSize int) (newWidth, newHeight int) {
	if width <= maxSize && height <= maxSize {
		return width, height
	}
	if width > height {
		newWidth = maxSize
		newHeight = (height * maxSize) / width
	} else {
		newHeight = maxSize
		newWidth = (width * maxSize) / height
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}
	return
}
