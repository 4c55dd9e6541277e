package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"breedstudio/internal/domain"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("storage: object not found")

// Store persists generated images under slash-separated keys.
type Store interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// PublicPrefix is the URL path generated images are served under.
const PublicPrefix = "/generated/"

// ReferencePrefix holds uploaded reference images. Dot-prefixed entries are
// never served by PublicHandler.
const ReferencePrefix = ".references/"

// BreedDir is the per-breed directory name. Leading dots are dropped so a
// breed directory is always public.
func BreedDir(breed string) string {
	return strings.TrimLeft(domain.Slug(breed), ".")
}

// ReferenceKey is the storage key of a session's reference image.
func ReferenceKey(sessionID, ext string) string {
	return ReferencePrefix + sessionID + ext
}

// BreedKey joins the breed directory and a file name into a storage key.
func BreedKey(breed, fileName string) string {
	return path.Join(BreedDir(breed), path.Base(strings.ReplaceAll(fileName, "\\", "/")))
}

// PublicPath maps a storage key to the path it is served from.
func PublicPath(key string) string {
	return PublicPrefix + strings.TrimLeft(key, "/")
}
