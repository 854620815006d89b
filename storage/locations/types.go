package locations

import (
	"context"
	"errors"
	"io"
	"iter"
)

// StorageLocation is a directory-like place to keep files, either on the local
// file system or under an S3 prefix.
type StorageLocation interface {
	// Write data to the given file path. The path is relative to whatever path
	// prefixes the file store was initialized with. However the returned URI
	// represents the full path to this file.
	Write(ctx context.Context, path string, data io.Reader) (uri string, err error)
	// Read accepts a relative path or a URI returned by this location.
	Read(ctx context.Context, path string) ([]byte, error)
	// List yields the URIs of files under the relative prefix in lexical order.
	List(ctx context.Context, prefix string) iter.Seq2[string, error]
	URI(ctx context.Context, path string) (string, error)
	Copy(ctx context.Context, sourceURI string, destination string) error
	// Remove deletes files. Missing files are not an error.
	Remove(ctx context.Context, paths ...string) error
}

var ErrNotFound = errors.New("path not found")
