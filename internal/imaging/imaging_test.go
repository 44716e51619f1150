package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"photostore/internal/models"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

const gpxDoc = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test"><trk><name>ride</name></trk></gpx>`

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		want     string
		wantErr  bool
	}{
		{"png", "a.png", testPNG(t, 2, 2), models.ContentTypePNG, false},
		{"png with wrong extension", "a.jpg", testPNG(t, 2, 2), models.ContentTypePNG, false},
		{"jpeg magic", "b.jpg", []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), models.ContentTypeJPEG, false},
		{"gpx", "ride.GPX", []byte(gpxDoc), ContentTypeGPX, false},
		{"xml without gpx extension", "ride.xml", []byte(gpxDoc), "", true},
		{"pdf", "doc.pdf", []byte("%PDF-1.4 test"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectContentType(tt.filename, tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedType) {
					t.Fatalf("DetectContentType() error = %v, want ErrUnsupportedType", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectContentType() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectContentType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDimensions(t *testing.T) {
	w, h, err := Dimensions(models.ContentTypePNG, testPNG(t, 40, 30))
	if err != nil {
		t.Fatalf("Dimensions() error: %v", err)
	}
	if w != 40 || h != 30 {
		t.Errorf("Dimensions() = %dx%d, want 40x30", w, h)
	}
}

func TestDimensions_NonImage(t *testing.T) {
	w, h, err := Dimensions(ContentTypeGPX, []byte(gpxDoc))
	if err != nil || w != 0 || h != 0 {
		t.Errorf("Dimensions(gpx) = %d, %d, %v; want 0, 0, nil", w, h, err)
	}
}

func TestDimensions_Corrupt(t *testing.T) {
	if _, _, err := Dimensions(models.ContentTypeJPEG, []byte("not an image")); err == nil {
		t.Error("Dimensions() should fail on corrupt data")
	}
}

func TestExtension(t *testing.T) {
	if got := Extension(models.ContentTypeWebP); got != ".webp" {
		t.Errorf("Extension(webp) = %q", got)
	}
	if got := Extension("application/pdf"); got != "" {
		t.Errorf("Extension(pdf) = %q, want empty", got)
	}
}
