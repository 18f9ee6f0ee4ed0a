// Package media stores uploaded images (book covers, profile photos) on an
// external host and hands back public URLs.
//
// Backends:
//   - LocalHost: files on an afero filesystem, served by the API under /media/
//   - S3Host:    objects in an S3-compatible bucket
//
// BreakerHost wraps either one with a circuit breaker so a failing host fails
// fast instead of holding requests open.
package media

import (
	"context"
	"errors"
	"path"
	"strings"
)

// Host is the contract the services depend on.
//
// Upload returns the public URL of the stored object. Destroy removes an
// object by the public ID extracted from its URL (see PublicIDFromURL).
// Owns reports whether a URL points at an object this host stored, so
// callers never try to delete foreign references such as generated avatars.
type Host interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
	Destroy(ctx context.Context, publicID string) error
	Owns(url string) bool
}

// ErrNotImage is returned when uploaded bytes are not a supported image.
var ErrNotImage = errors.New("media: not an image")

// PublicIDFromURL extracts the object identifier from a hosted URL: the last
// path segment with any extension and query string removed.
//
//	https://cdn.example.com/bookworm/9b1d...e2.jpg?v=1 → 9b1d...e2
func PublicIDFromURL(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	seg := path.Base(strings.TrimRight(rawURL, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	if i := strings.IndexByte(seg, '.'); i >= 0 {
		seg = seg[:i]
	}
	return seg
}

// ownedBy is the substring test shared by the backends.
func ownedBy(url, marker string) bool {
	return marker != "" && url != "" && strings.Contains(url, marker)
}
