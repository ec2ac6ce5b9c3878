package utils

import (
	"context"
	"io"
	"strings"
)

// ObjectStore persists uploaded blobs and returns their public URL
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	// KeyFor maps a URL returned by Put back to its key; ok is false for foreign URLs.
	KeyFor(url string) (key string, ok bool)
}

func keyUnder(base, url string) (string, bool) {
	key, ok := strings.CutPrefix(url, base+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
