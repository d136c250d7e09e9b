// Package blobstore stores uploaded prescription files. Records keep only
// the key; the bytes live in a Store backend.
package blobstore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidKey   = errors.New("invalid blob key")
)

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Size returns ErrBlobNotFound when the key is absent.
	Size(ctx context.Context, key string) (int64, error)

	// Open returns ErrBlobNotFound when the key is absent. Callers close the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete is a no-op for an absent key.
	Delete(ctx context.Context, key string) error
}

// CleanKey normalizes a slash-separated key and rejects anything that could
// escape the store root.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
