// internal/ocr/engine.go
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"

	"github.com/disintegration/imaging"
)

// Engine is the external text-recognition engine. It returns the raw text it
// sees in the image; interpretation is the adapter's job. A failure here
// means the engine is unavailable, not that the image held no text.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// charWhitelist restricts recognition to code characters plus the separator
// punctuation that typically surrounds them.
const charWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789:. "

// TesseractEngine shells out to the tesseract CLI, feeding the image on
// stdin as PNG and reading recognized text from stdout. psm 6 assumes a
// single uniform block of text, which matches the cropped code band.
type TesseractEngine struct {
	binary string
}

func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{binary: "tesseract"}
}

func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image) (string, error) {
	if _, err := exec.LookPath(e.binary); err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", e.binary, err)
	}

	var in bytes.Buffer
	if err := imaging.Encode(&in, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.binary,
		"stdin", "stdout",
		"--psm", "6",
		"-c", "tessedit_char_whitelist="+charWhitelist,
	)
	cmd.Stdin = &in

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w\nOutput: %s", err, stderr.String())
	}
	return out.String(), nil
}
