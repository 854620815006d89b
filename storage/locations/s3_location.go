package locations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"reduction.dev/ckptsink/storage/objstore"
)

// DeleteObjects accepts at most this many keys per request.
const maxDeleteKeys = 1000

// S3Location keeps checkpoints and staged batches under one bucket prefix.
type S3Location struct {
	s3     objstore.S3Service
	bucket string
	prefix string
}

func NewS3Location(s3 objstore.S3Service, path string) (*S3Location, error) {
	bucket, prefix := parseS3URI(path)
	if bucket == "" {
		return nil, fmt.Errorf("S3 path must include bucket: %s", path)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Location{s3: s3, bucket: bucket, prefix: prefix}, nil
}

func (l *S3Location) Write(ctx context.Context, path string, data io.Reader) (string, error) {
	key := l.key(path)
	if _, err := l.s3.PutObject(ctx, &s3.PutObjectInput{Bucket: &l.bucket, Key: &key, Body: data}); err != nil {
		return "", fmt.Errorf("put %s: %w", s3URI(l.bucket, key), err)
	}
	return s3URI(l.bucket, key), nil
}

func (l *S3Location) Read(ctx context.Context, path string) ([]byte, error) {
	return getObject(ctx, l.s3, l.bucket, l.key(path))
}

// Copy duplicates an object inside the bucket. It is how staged batches are
// committed.
func (l *S3Location) Copy(ctx context.Context, sourceURI string, destination string) error {
	source := l.bucket + "/" + l.key(sourceURI)
	destKey := l.key(destination)
	_, err := l.s3.CopyObject(ctx, &s3.CopyObjectInput{CopySource: &source, Bucket: &l.bucket, Key: &destKey})
	if isNotFound(err) {
		return fmt.Errorf("copy s3://%s: %w", source, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("copy s3://%s to %s: %w", source, destKey, err)
	}
	return nil
}

// List pages through every object under the location's prefix joined with the
// given prefix.
func (l *S3Location) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		keyPrefix := l.key(prefix)
		paginator := s3.NewListObjectsV2Paginator(l.s3, &s3.ListObjectsV2Input{
			Bucket: &l.bucket,
			Prefix: &keyPrefix,
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield("", fmt.Errorf("list %s: %w", s3URI(l.bucket, keyPrefix), err))
				return
			}
			for _, obj := range page.Contents {
				if !yield(s3URI(l.bucket, *obj.Key), nil) {
					return
				}
			}
		}
	}
}

// Remove deletes objects in batches of up to 1,000 keys. Keys S3 reports as
// failed are joined into the returned error.
func (l *S3Location) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for batch := range chunk(paths, maxDeleteKeys) {
		objects := make([]types.ObjectIdentifier, len(batch))
		for i, path := range batch {
			key := l.key(path)
			objects[i] = types.ObjectIdentifier{Key: &key}
		}

		out, err := l.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &l.bucket,
			Delete: &types.Delete{Objects: objects},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %d objects from %s: %w", len(objects), l.bucket, err))
			continue
		}
		for _, e := range out.Errors {
			errs = append(errs, fmt.Errorf("delete %s: %s", s3URI(l.bucket, deref(e.Key)), deref(e.Message)))
		}
	}
	return errors.Join(errs...)
}

// URI returns the object's URI, or ErrNotFound when it does not exist.
func (l *S3Location) URI(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path cannot be empty")
	}

	key := l.key(path)
	_, err := l.s3.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &l.bucket, Key: &key})
	if isNotFound(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("head %s: %w", s3URI(l.bucket, key), err)
	}
	return s3URI(l.bucket, key), nil
}

var _ StorageLocation = (*S3Location)(nil)

// key turns a path relative to the location, or an s3:// URI, into a bucket
// key.
func (l *S3Location) key(path string) string {
	if strings.HasPrefix(path, "s3://") {
		_, key := parseS3URI(path)
		return key
	}
	return l.prefix + strings.TrimPrefix(path, "/")
}

// parseS3URI splits "s3://bucket/key" into bucket and key. The scheme is
// optional.
func parseS3URI(uri string) (bucket, key string) {
	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
	return bucket, key
}

func getObject(ctx context.Context, client objstore.S3Service, bucket, key string) ([]byte, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if isNotFound(err) {
		return nil, fmt.Errorf("read %s: %w", s3URI(bucket, key), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s3URI(bucket, key), err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// isNotFound matches GetObject's NoSuchKey and HeadObject's bodiless NotFound.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func s3URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

func chunk[T any](items []T, size int) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		for start := 0; start < len(items); start += size {
			if !yield(items[start:min(start+size, len(items))]) {
				return
			}
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
