package chat

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"chatbot-gateway/internal/apperrors"
)

const (
	MaxUploadBytes     = 5 * 1024 * 1024
	maxCompressedBytes = 1024 * 1024

	// Bounding box the image is scaled down to fit, never enlarged
	maxImageDimension = 1280

	jpegQuality = 80
)

func allowedImageType(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		return true
	}
	return false
}

// compressToDataURL downscales the upload to fit the bounding box, re-encodes
// it as JPEG and returns it as a base64 data URL plus its compressed size
func compressToDataURL(data []byte, mimeType string) (string, int, error) {
	if !allowedImageType(mimeType) {
		return "", 0, fmt.Errorf("%w: only JPEG, PNG, and WebP images are supported", apperrors.ErrImageUnsupported)
	}
	if len(data) > MaxUploadBytes {
		return "", 0, fmt.Errorf("%w: maximum 5MB allowed", apperrors.ErrImageTooLarge)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", 0, fmt.Errorf("%w: failed to decode image: %w", apperrors.ErrImageUnsupported, err)
	}

	dst := downscale(src, maxImageDimension)

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", 0, fmt.Errorf("failed to encode image: %w", err)
	}

	if buf.Len() > maxCompressedBytes {
		return "", 0, fmt.Errorf("%w even after compression, please use a smaller image", apperrors.ErrImageTooLarge)
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	return dataURL, buf.Len(), nil
}

func downscale(src image.Image, maxDim int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	dw, dh := int(float64(w)*scale), int(float64(h)*scale)

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
