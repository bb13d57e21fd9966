package assets

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/mockup"
	intImage "github.com/gogpu/mockup/internal/image"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 200, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := intImage.SavePNG(path, img); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFileExtensions(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "scene.png"), testImage(4, 3))

	r := New(Config{})
	tests := []struct {
		name    string
		ref     string
		wantErr error
	}{
		{"without extension", filepath.Join(dir, "scene"), nil},
		{"exact", filepath.Join(dir, "scene.png"), nil},
		{"file scheme", "file://" + filepath.Join(dir, "scene"), nil},
		{"missing", filepath.Join(dir, "uv"), ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := r.Load(context.Background(), tt.ref)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, mockup.ErrLoad) {
					t.Fatalf("expected %v wrapping ErrLoad, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if img.Rect.Dx() != 4 || img.Rect.Dy() != 3 {
				t.Errorf("expected 4x3, got %v", img.Rect)
			}
			if got := img.NRGBAAt(2, 1); got != (color.NRGBA{R: 20, G: 10, B: 200, A: 255}) {
				t.Errorf("unexpected pixel %v", got)
			}
		})
	}
}

func TestLoadDataURI(t *testing.T) {
	uri, err := EncodeDataURI(testImage(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	img, err := New(Config{}).Load(context.Background(), uri)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Rect.Dx() != 2 {
		t.Errorf("expected width 2, got %d", img.Rect.Dx())
	}

	if _, err := New(Config{}).Load(context.Background(), "data:image/png;base64"); !errors.Is(err, mockup.ErrLoad) {
		t.Errorf("expected ErrLoad for malformed URI, got %v", err)
	}
}

func TestDecodeDataURIPlain(t *testing.T) {
	data, err := decodeDataURI("data:text/plain,hello%20world")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", data)
	}
}

func TestLoadHTTP(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "7", "images", "uv.png"), testImage(5, 5))
	srv := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer srv.Close()

	r := New(Config{Client: srv.Client()})
	img, err := r.Load(context.Background(), srv.URL+"/7/images/uv")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Rect.Dx() != 5 {
		t.Errorf("expected width 5, got %d", img.Rect.Dx())
	}
	if _, err := r.Load(context.Background(), srv.URL+"/7/images/scene"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Config{}).Load(ctx, "anything"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFitSquare(t *testing.T) {
	out := FitSquare(testImage(40, 20), 10)
	if out.Rect.Dx() != 10 || out.Rect.Dy() != 10 {
		t.Fatalf("expected 10x10, got %v", out.Rect)
	}
	if a := out.NRGBAAt(5, 2).A; a == 0 {
		t.Error("expected content in the top half")
	}
	if a := out.NRGBAAt(5, 8).A; a != 0 {
		t.Errorf("expected transparent bottom half, got alpha %d", a)
	}
}

func TestWatcherChange(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "12", "images"), 0o755); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(root)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	tests := []struct {
		path string
		want Change
		ok   bool
	}{
		{filepath.Join(root, "12", "images", "uv.png"), Change{SceneID: 12, Name: "uv.png"}, true},
		{filepath.Join(root, "12", "notes.txt"), Change{}, false},
		{filepath.Join(root, "abc", "images", "uv.png"), Change{}, false},
	}
	for _, tt := range tests {
		got, ok := w.change(tt.path)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s: expected (%+v, %v), got (%+v, %v)", tt.path, tt.want, tt.ok, got, ok)
		}
	}
}
