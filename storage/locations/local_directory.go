package locations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// LocalDirectory stores files under a root directory. URIs are absolute file
// paths.
type LocalDirectory struct {
	root string
}

func NewLocalDirectory(root string) *LocalDirectory {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &LocalDirectory{root: filepath.Clean(root)}
}

func (d *LocalDirectory) Write(ctx context.Context, path string, data io.Reader) (string, error) {
	dest := d.resolve(path)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", dest, err)
	}

	// Write to a temp file and rename so readers never see partial files
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-"+filepath.Base(dest)+"-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	_, copyErr := io.Copy(tmp, data)
	if err := errors.Join(copyErr, tmp.Close()); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("renaming into %s: %w", dest, err)
	}

	return dest, nil
}

func (d *LocalDirectory) Read(ctx context.Context, path string) ([]byte, error) {
	return ReadLocalFile(d.resolve(path))
}

func (d *LocalDirectory) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		// WalkDir visits entries in lexical order
		err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == d.root {
					return filepath.SkipAll
				}
				return err
			}
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".tmp-") {
				return nil
			}
			rel, err := filepath.Rel(d.root, path)
			if err != nil {
				return err
			}
			if !strings.HasPrefix(filepath.ToSlash(rel), prefix) {
				return nil
			}
			if !yield(path, nil) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield("", fmt.Errorf("listing %s: %w", d.root, err))
		}
	}
}

func (d *LocalDirectory) URI(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path cannot be empty")
	}

	resolved := d.resolve(path)
	if _, err := os.Stat(resolved); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return resolved, nil
}

func (d *LocalDirectory) Copy(ctx context.Context, sourceURI string, destination string) error {
	src, err := os.Open(d.resolve(sourceURI))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("opening copy source: %w", err)
	}
	defer src.Close()

	if _, err := d.Write(ctx, destination, src); err != nil {
		return fmt.Errorf("copying %s: %w", sourceURI, err)
	}
	return nil
}

func (d *LocalDirectory) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, path := range paths {
		if err := os.Remove(d.resolve(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// resolve returns absolute paths under the root as they are and joins
// relative paths to the root.
func (d *LocalDirectory) resolve(path string) string {
	if filepath.IsAbs(path) && strings.HasPrefix(filepath.Clean(path), d.root) {
		return filepath.Clean(path)
	}
	return filepath.Join(d.root, path)
}

var _ StorageLocation = (*LocalDirectory)(nil)
