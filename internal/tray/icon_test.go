package tray

import (
	"bytes"
	"image/png"
	"testing"
)

func TestStatusIconIsValidPNG(t *testing.T) {
	for _, status := range []string{"idle", "listening", "recording", "processing", "done", "error", "bogus"} {
		data := statusIcon(status)
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("status %q: invalid png: %v", status, err)
		}
		b := img.Bounds()
		if b.Dx() != iconSize || b.Dy() != iconSize {
			t.Fatalf("status %q: unexpected size %dx%d", status, b.Dx(), b.Dy())
		}
	}
}

func TestStatusIconsDifferByStatus(t *testing.T) {
	if bytes.Equal(statusIcon("recording"), statusIcon("processing")) {
		t.Fatal("recording and processing icons should differ")
	}
}
