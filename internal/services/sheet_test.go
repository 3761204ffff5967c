package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/pixelbloom/comicforge-backend/internal/logger"
)

func solidPNG(t *testing.T, c color.Color, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestSheetComposer(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	t.Setenv("SHEET_FONT", "")
	sc, err := NewSheetComposer(log)
	if err != nil {
		t.Fatalf("NewSheetComposer: %v", err)
	}

	panels := [][]byte{
		solidPNG(t, color.RGBA{R: 255, A: 255}, 64, 64),
		solidPNG(t, color.RGBA{G: 255, A: 255}, 128, 96),
		solidPNG(t, color.RGBA{B: 255, A: 255}, 100, 100),
	}
	captions := []string{"one", "two", "three"}

	out, err := sc.Compose(panels, captions)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}

	// 3 panels in 2 columns means 2 rows.
	wantW := 2*sheetCell + 3*sheetGutter
	wantH := 2*(sheetCell+sheetCaptionH) + 3*sheetGutter
	if img.Bounds().Dx() != wantW || img.Bounds().Dy() != wantH {
		t.Fatalf("sheet size: got %dx%d want %dx%d", img.Bounds().Dx(), img.Bounds().Dy(), wantW, wantH)
	}
}

func TestSheetComposerRejectsEmptyInput(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Setenv("SHEET_FONT", "")
	sc, err := NewSheetComposer(log)
	if err != nil {
		t.Fatalf("NewSheetComposer: %v", err)
	}
	if _, err := sc.Compose(nil, nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
