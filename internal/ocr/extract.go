// internal/ocr/extract.go
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/redeemly/redeemd/pkg/schema"
)

// CropRegion is the relative sub-region scanned for the code, expressed as
// ratios of the full image. The defaults target the bottom-middle band where
// the code consistently renders; tune per channel if the layout changes.
type CropRegion struct {
	Top    float64
	Bottom float64
	Left   float64
	Right  float64
}

func DefaultCropRegion() CropRegion {
	return CropRegion{Top: 0.70, Bottom: 0.90, Left: 0.30, Right: 0.75}
}

func (r CropRegion) valid() bool {
	return r.Top >= 0 && r.Bottom <= 1 && r.Top < r.Bottom &&
		r.Left >= 0 && r.Right <= 1 && r.Left < r.Right
}

// Adapter wraps an Engine behind the extract contract: decode, crop, run the
// engine, scan for a code. Decode failures and missing codes are misses, not
// errors; only engine unavailability surfaces as an error.
type Adapter struct {
	engine Engine
	crop   CropRegion
	logger *slog.Logger
}

func NewAdapter(engine Engine, crop CropRegion, logger *slog.Logger) (*Adapter, error) {
	if !crop.valid() {
		return nil, fmt.Errorf("invalid crop region %+v", crop)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: engine, crop: crop, logger: logger}, nil
}

// Extract scans payload for a redemption code. It is a pure function of the
// payload: same bytes, same result.
func (a *Adapter) Extract(ctx context.Context, payload []byte) (schema.Code, bool, error) {
	img, err := imaging.Decode(bytes.NewReader(payload))
	if err != nil {
		a.logger.Debug("image decode failed", "err", err)
		return "", false, nil
	}

	text, err := a.engine.Recognize(ctx, a.cropBand(img))
	if err != nil {
		return "", false, fmt.Errorf("recognize: %w", err)
	}

	raw, ok := scanCode(text)
	if !ok {
		return "", false, nil
	}
	return schema.FormatCode(raw), true, nil
}

func (a *Adapter) cropBand(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rect := image.Rect(
		b.Min.X+int(float64(w)*a.crop.Left),
		b.Min.Y+int(float64(h)*a.crop.Top),
		b.Min.X+int(float64(w)*a.crop.Right),
		b.Min.Y+int(float64(h)*a.crop.Bottom),
	)
	return imaging.Crop(img, rect)
}

// scanCode finds the first run of exactly schema.CodeLength characters drawn
// from [A-Z0-9] after collapsing separator punctuation and line breaks to
// spaces. Runs longer than the code length are noise, not codes.
func scanCode(text string) (string, bool) {
	normalized := make([]byte, len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == ':' || c == '.' || c == '\n' || c == '\r' {
			c = ' '
		}
		normalized[i] = c
	}

	runStart := -1
	flush := func(end int) (string, bool) {
		if runStart >= 0 && end-runStart == schema.CodeLength {
			return string(normalized[runStart:end]), true
		}
		return "", false
	}

	for i := 0; i < len(normalized); i++ {
		if isCodeChar(normalized[i]) {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if raw, ok := flush(i); ok {
			return raw, true
		}
		runStart = -1
	}
	return flush(len(normalized))
}

func isCodeChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
