package image

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"mime/multipart"

	"github.com/chai2010/webp"
)

const (
	MaxImageSize = 10 * 1024 * 1024 // 10MB
)

var AllowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Process validates and re-encodes an uploaded photo, returning the encoded
// bytes and their content type.
func Process(file *multipart.FileHeader) (*bytes.Buffer, string, error) {
	if file.Size > MaxImageSize {
		return nil, "", fmt.Errorf("file too large: maximum size is %d bytes", MaxImageSize)
	}

	if contentType := file.Header.Get("Content-Type"); !AllowedImageTypes[contentType] {
		return nil, "", fmt.Errorf("invalid file type %q: allowed types are jpeg, png, webp", contentType)
	}

	src, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("could not open file: %w", err)
	}
	defer src.Close()

	img, format, err := image.Decode(src)
	if err != nil {
		return nil, "", fmt.Errorf("could not decode image: %w", err)
	}

	buf := new(bytes.Buffer)

	switch format {
	case "jpeg":
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: 85})
	case "png":
		err = png.Encode(buf, img)
	case "webp":
		err = webp.Encode(buf, img, &webp.Options{Lossless: false, Quality: 85})
	default:
		return nil, "", fmt.Errorf("unsupported image format: %s", format)
	}

	if err != nil {
		return nil, "", fmt.Errorf("could not encode image: %w", err)
	}

	return buf, fmt.Sprintf("image/%s", format), nil
}
