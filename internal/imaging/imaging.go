// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package imaging identifies uploaded files and reads image dimensions
// without decoding pixel data.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"net/http"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp" // register WebP decoder

	"photostore/internal/models"
)

// ContentTypeGPX is accepted for track uploads. Sniffing reports it as
// generic XML, so it is recognised by extension.
const ContentTypeGPX = "application/gpx+xml"

// maxPixels rejects decompression bombs.
const maxPixels = 100_000_000

// ErrUnsupportedType is returned for files the catalog does not store.
var ErrUnsupportedType = errors.New("unsupported file type")

var allowedTypes = map[string]string{
	models.ContentTypeJPEG: ".jpg",
	models.ContentTypePNG:  ".png",
	models.ContentTypeWebP: ".webp",
	ContentTypeGPX:         ".gpx",
}

// DetectContentType sniffs data and falls back to the filename extension
// for formats sniffing cannot tell apart.
func DetectContentType(filename string, data []byte) (string, error) {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i != -1 {
		ct = ct[:i]
	}
	if _, ok := allowedTypes[ct]; ok {
		return ct, nil
	}
	if strings.EqualFold(filepath.Ext(filename), ".gpx") && (ct == "text/xml" || ct == "text/plain") {
		return ContentTypeGPX, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
}

// Extension returns the file extension stored for a content type.
func Extension(contentType string) string {
	return allowedTypes[contentType]
}

// Dimensions reads width and height from an image header. Non-image
// content types report zero dimensions.
func Dimensions(contentType string, data []byte) (int, int, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return 0, 0, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return 0, 0, fmt.Errorf("image too large: %dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxPixels)
	}
	return cfg.Width, cfg.Height, nil
}
