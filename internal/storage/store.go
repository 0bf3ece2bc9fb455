// Package storage persists uploaded assets under deterministic keys.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrObjectStoreFailed = errors.New("object store write failed")
	ErrInvalidKey        = errors.New("invalid object key")
)

// Object is one asset to write. Objects are create-only: a key is written
// once per submission and never updated.
type Object struct {
	Key         string
	ContentType string
	Content     []byte
}

// ObjectStore writes objects and returns their public URL.
type ObjectStore interface {
	Name() string
	Put(ctx context.Context, obj Object) (string, error)
}

// AssetKey builds "<category>/<applicationId>/<role><ext>". ext includes the
// leading dot.
func AssetKey(category, applicationID, role, ext string) (string, error) {
	for _, part := range []string{category, applicationID, role} {
		if part == "" || strings.ContainsAny(part, "/\\") || part == "." || part == ".." {
			return "", fmt.Errorf("%w: segment %q", ErrInvalidKey, part)
		}
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(category, applicationID, role+strings.ToLower(ext)), nil
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
