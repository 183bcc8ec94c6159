package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/redeemly/redeemd/pkg/schema"
)

type fakeEngine struct {
	text  string
	err   error
	calls int
	seen  image.Rectangle
}

func (e *fakeEngine) Recognize(ctx context.Context, img image.Image) (string, error) {
	e.calls++
	e.seen = img.Bounds()
	return e.text, e.err
}

func testImageBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestAdapter(t *testing.T, engine Engine) *Adapter {
	t.Helper()
	a, err := NewAdapter(engine, DefaultCropRegion(), nil)
	if err != nil {
		t.Fatalf("NewAdapter returned error: %v", err)
	}
	return a
}

func TestExtractFindsAndFormatsCode(t *testing.T) {
	engine := &fakeEngine{text: "CODE: ABCD1234EFGH5678\n"}
	a := newTestAdapter(t, engine)
	payload := testImageBytes(t, 400, 200)

	code, found, err := a.Extract(context.Background(), payload)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if !found {
		t.Fatal("expected a code")
	}
	if code != "ABCD-1234-EFGH-5678" {
		t.Fatalf("unexpected code: %s", code)
	}
}

func TestExtractIsPure(t *testing.T) {
	engine := &fakeEngine{text: "ABCD1234EFGH5678"}
	a := newTestAdapter(t, engine)
	payload := testImageBytes(t, 100, 100)

	first, foundFirst, _ := a.Extract(context.Background(), payload)
	second, foundSecond, _ := a.Extract(context.Background(), payload)
	if first != second || foundFirst != foundSecond {
		t.Fatalf("Extract not deterministic: %q/%v vs %q/%v", first, foundFirst, second, foundSecond)
	}
}

func TestExtractGarbageBytes(t *testing.T) {
	engine := &fakeEngine{text: "ABCD1234EFGH5678"}
	a := newTestAdapter(t, engine)

	code, found, err := a.Extract(context.Background(), []byte("definitely not an image"))
	if err != nil {
		t.Fatalf("decode failure must be a miss, got error: %v", err)
	}
	if found || code != "" {
		t.Fatalf("expected miss for garbage bytes, got %q", code)
	}
	if engine.calls != 0 {
		t.Fatalf("engine must not run on undecodable input (ran %d times)", engine.calls)
	}
}

func TestExtractEngineUnavailable(t *testing.T) {
	engine := &fakeEngine{err: errors.New("tesseract not found")}
	a := newTestAdapter(t, engine)

	_, found, err := a.Extract(context.Background(), testImageBytes(t, 50, 50))
	if err == nil {
		t.Fatal("expected engine error to surface")
	}
	if found {
		t.Fatal("engine failure must not produce a code")
	}
}

func TestExtractCropsBottomMiddleBand(t *testing.T) {
	engine := &fakeEngine{text: ""}
	a := newTestAdapter(t, engine)

	_, _, err := a.Extract(context.Background(), testImageBytes(t, 200, 100))
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	// Default region: width [0.30, 0.75) of 200 = 90, height [0.70, 0.90) of 100 = 20.
	if got := engine.seen; got.Dx() != 90 || got.Dy() != 20 {
		t.Fatalf("unexpected crop size: %dx%d, want 90x20", got.Dx(), got.Dy())
	}
}

func TestNewAdapterRejectsBadCrop(t *testing.T) {
	bad := CropRegion{Top: 0.9, Bottom: 0.7, Left: 0.3, Right: 0.75}
	if _, err := NewAdapter(&fakeEngine{}, bad, nil); err == nil {
		t.Fatal("expected error for inverted crop region")
	}
}

func TestScanCode(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{"plain run", "ABCD1234EFGH5678", "ABCD1234EFGH5678", true},
		{"with prefix and newline", "CODE: ABCD1234EFGH5678\n", "ABCD1234EFGH5678", true},
		{"separators break runs", "ABCD.1234:EFGH 5678", "", false},
		{"seventeen chars is not a code", "ABCD1234EFGH56789", "", false},
		{"fifteen chars is not a code", "ABCD1234EFGH567", "", false},
		{"first of two wins", "AAAA1111BBBB2222 CCCC3333DDDD4444", "AAAA1111BBBB2222", true},
		{"lowercase ignored", "abcd1234efgh5678", "", false},
		{"run at end of text", "REDEEM NOW QQQQ9999RRRR0000", "QQQQ9999RRRR0000", true},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := scanCode(tt.text)
			if found != tt.found || got != tt.want {
				t.Fatalf("scanCode(%q) = %q/%v, want %q/%v", tt.text, got, found, tt.want, tt.found)
			}
		})
	}
}

func TestFormatCodeRoundTrip(t *testing.T) {
	code := schema.FormatCode("ABCD1234EFGH5678")
	if code != "ABCD-1234-EFGH-5678" {
		t.Fatalf("FormatCode mismatch: %s", code)
	}
	if code.Compact() != "ABCD1234EFGH5678" {
		t.Fatalf("Compact mismatch: %s", code.Compact())
	}
}
