package media

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const backendLocal = "local"

// LocalHost keeps objects as flat files in a directory and serves them back
// through ServeHTTP. Object names are random UUIDs without an extension; the
// content type is sniffed when serving.
type LocalHost struct {
	fs        afero.Fs
	publicURL string // e.g. http://localhost:3000/media
}

var _ Host = (*LocalHost)(nil)

// NewLocalHost stores files under dir on the OS filesystem.
func NewLocalHost(dir, publicURL string) (*LocalHost, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: creating %s: %w", dir, err)
	}
	return NewLocalHostFs(afero.NewBasePathFs(afero.NewOsFs(), dir), publicURL), nil
}

// NewLocalHostFs uses fs as the storage root; tests pass afero.NewMemMapFs().
func NewLocalHostFs(fs afero.Fs, publicURL string) *LocalHost {
	return &LocalHost{fs: fs, publicURL: strings.TrimRight(publicURL, "/")}
}

func (h *LocalHost) Upload(ctx context.Context, data []byte, contentType string) (url string, err error) {
	defer func() { recordOp(backendLocal, "upload", err) }()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uuid.NewString()
	if err := afero.WriteFile(h.fs, name, data, 0o644); err != nil {
		return "", fmt.Errorf("media: writing %s: %w", name, err)
	}
	UploadBytes.WithLabelValues(backendLocal).Observe(float64(len(data)))
	return h.publicURL + "/" + name, nil
}

func (h *LocalHost) Destroy(ctx context.Context, publicID string) (err error) {
	defer func() { recordOp(backendLocal, "destroy", err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !validName(publicID) {
		return fmt.Errorf("media: invalid public id %q", publicID)
	}
	if err := h.fs.Remove(publicID); err != nil {
		return fmt.Errorf("media: removing %s: %w", publicID, err)
	}
	return nil
}

func (h *LocalHost) Owns(url string) bool {
	return ownedBy(url, h.publicURL+"/")
}

// ServeHTTP serves a stored object. Mount it with http.StripPrefix so the
// request path is just the object name.
func (h *LocalHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if !validName(name) {
		http.NotFound(w, r)
		return
	}

	data, err := afero.ReadFile(h.fs, name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}

// validName accepts a single path segment.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
