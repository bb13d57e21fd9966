// Package assets loads the rasters mockup renders from: scene textures,
// preview images and images embedded in artwork.
//
// A reference is a local path (optionally file://), an http(s) URL or a
// data: URI. Local and remote references without a matching file are
// retried with each configured extension, so scene assets can be named
// without one.
package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/mockup"
	intImage "github.com/gogpu/mockup/internal/image"
)

// ErrNotFound is returned when no candidate of a reference exists.
var ErrNotFound = errors.New("assets: not found")

// Loader loads a reference into a straight-alpha raster.
type Loader interface {
	Load(ctx context.Context, ref string) (*image.NRGBA, error)
}

// Config configures a Resolver.
type Config struct {
	// Client is used for http(s) references.
	Client *http.Client
	// Extensions are tried in order after the exact reference.
	Extensions []string
	// MaxBytes limits the size of a single asset.
	MaxBytes int64
}

// DefaultConfig returns the default loader configuration.
func DefaultConfig() Config {
	return Config{
		Client:     &http.Client{Timeout: 30 * time.Second},
		Extensions: []string{".png", ".jpg"},
		MaxBytes:   64 << 20,
	}
}

// Resolver is the default Loader.
type Resolver struct {
	cfg Config
}

// New creates a Resolver. Zero fields of cfg take their defaults.
func New(cfg Config) *Resolver {
	def := DefaultConfig()
	if cfg.Client == nil {
		cfg.Client = def.Client
	}
	if cfg.Extensions == nil {
		cfg.Extensions = def.Extensions
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	return &Resolver{cfg: cfg}
}

// Load resolves ref and decodes it. Failures wrap mockup.ErrLoad.
func (r *Resolver) Load(ctx context.Context, ref string) (*image.NRGBA, error) {
	data, err := r.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, err := intImage.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", mockup.ErrLoad, shorten(ref), err)
	}
	return img, nil
}

// Read returns the raw bytes of ref.
func (r *Resolver) Read(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.HasPrefix(ref, "data:") {
		data, err := decodeDataURI(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", mockup.ErrLoad, err)
		}
		return data, nil
	}

	fetch := r.readFile
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		fetch = r.readHTTP
	}
	for _, candidate := range r.candidates(ref) {
		data, err := fetch(ctx, candidate)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", mockup.ErrLoad, candidate, err)
		}
		mockup.Logger().Debug("assets: loaded", "ref", candidate, "bytes", len(data))
		return data, nil
	}
	return nil, fmt.Errorf("%w: %w: %s", mockup.ErrLoad, ErrNotFound, ref)
}

// candidates returns ref followed by ref with each extension, skipping the
// extensions when ref already has one of them.
func (r *Resolver) candidates(ref string) []string {
	out := []string{ref}
	ext := strings.ToLower(filepath.Ext(ref))
	for _, e := range r.cfg.Extensions {
		if ext == e {
			return out
		}
	}
	for _, e := range r.cfg.Extensions {
		out = append(out, ref+e)
	}
	return out
}

func (r *Resolver) readFile(_ context.Context, ref string) ([]byte, error) {
	path := strings.TrimPrefix(ref, "file://")
	f, err := os.Open(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if st, err := f.Stat(); err == nil && st.IsDir() {
		return nil, ErrNotFound
	}
	return readLimited(f, r.cfg.MaxBytes)
}

func (r *Resolver) readHTTP(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("status %s", resp.Status)
	}
	return readLimited(resp.Body, r.cfg.MaxBytes)
}

func readLimited(rd io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("asset exceeds %d bytes", limit)
	}
	return data, nil
}

// decodeDataURI decodes data:[<mediatype>][;base64],<data>.
func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some encoders drop the padding.
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, fmt.Errorf("data URI: %w", err)
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("data URI: %w", err)
	}
	return []byte(s), nil
}

// EncodeDataURI returns img as a PNG data URI.
func EncodeDataURI(img image.Image) (string, error) {
	var sb strings.Builder
	sb.WriteString("data:image/png;base64,")
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	if err := intImage.EncodePNG(enc, img); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// shorten keeps data URIs out of error messages.
func shorten(ref string) string {
	if strings.HasPrefix(ref, "data:") && len(ref) > 32 {
		return ref[:32] + "..."
	}
	return ref
}

// FitSquare scales src to fit a size x size transparent square, keeping
// its aspect ratio. Preview images of any shape map onto the same content
// texture this way.
func FitSquare(src image.Image, size int) *image.NRGBA {
	return intImage.Fit(src, size, size, intImage.Smooth)
}
