package services

import (
  "bytes"
  "fmt"
  "image"
  "image/color"
  "os"
  "strings"

  _ "image/jpeg"
  _ "image/png"

  "github.com/fogleman/gg"
  "golang.org/x/image/draw"
  "golang.org/x/image/font"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
)

// SheetComposer renders all panel images of a comic onto one printable
// contact sheet, two panels per row with the panel text underneath.
type SheetComposer interface {
  Compose(panels [][]byte, captions []string) ([]byte, error)
}

type sheetComposer struct {
  log      *logger.Logger
  fontFace font.Face
}

const (
  sheetCell     = 512
  sheetGutter   = 24
  sheetCaptionH = 96
  sheetColumns  = 2
)

func NewSheetComposer(log *logger.Logger) (SheetComposer, error) {
  serviceLog := log.With("service", "SheetComposer")

  var face font.Face
  fontPath := os.Getenv("SHEET_FONT")
  if strings.TrimSpace(fontPath) != "" {
    f, err := loadFontFace(fontPath, 22)
    if err != nil {
      return nil, fmt.Errorf("could not load sheet font: %w", err)
    }
    face = f
  } else {
    serviceLog.Warn("SHEET_FONT not set, sheets will render without captions")
  }

  return &sheetComposer{log: serviceLog, fontFace: face}, nil
}

func (sc *sheetComposer) Compose(panels [][]byte, captions []string) ([]byte, error) {
  if len(panels) == 0 {
    return nil, fmt.Errorf("no panels to compose")
  }

  cols := sheetColumns
  if len(panels) < cols {
    cols = len(panels)
  }
  rows := (len(panels) + cols - 1) / cols

  cellH := sheetCell + sheetCaptionH
  width := cols*sheetCell + (cols+1)*sheetGutter
  height := rows*cellH + (rows+1)*sheetGutter

  dc := gg.NewContext(width, height)
  dc.SetColor(color.White)
  dc.Clear()

  for i, raw := range panels {
    img, _, err := image.Decode(bytes.NewReader(raw))
    if err != nil {
      return nil, fmt.Errorf("decode panel %d: %w", i+1, err)
    }

    scaled := image.NewRGBA(image.Rect(0, 0, sheetCell, sheetCell))
    draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

    col := i % cols
    row := i / cols
    x := sheetGutter + col*(sheetCell+sheetGutter)
    y := sheetGutter + row*(cellH+sheetGutter)

    dc.DrawImage(scaled, x, y)

    // Panel border
    dc.SetColor(color.Black)
    dc.SetLineWidth(2)
    dc.DrawRectangle(float64(x), float64(y), sheetCell, sheetCell)
    dc.Stroke()

    if sc.fontFace != nil && i < len(captions) && strings.TrimSpace(captions[i]) != "" {
      dc.SetFontFace(sc.fontFace)
      dc.SetColor(color.Black)
      dc.DrawStringWrapped(
        captions[i],
        float64(x)+float64(sheetCell)/2,
        float64(y+sheetCell)+12,
        0.5, 0,
        float64(sheetCell)-16,
        1.3,
        gg.AlignCenter,
      )
    }
  }

  var out bytes.Buffer
  if err := dc.EncodePNG(&out); err != nil {
    return nil, fmt.Errorf("encode sheet: %w", err)
  }
  return out.Bytes(), nil
}
