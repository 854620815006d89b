package locations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"reduction.dev/ckptsink/storage/objstore"
)

// ReadFile reads one checkpoint or staged file given as an s3:// URI or a
// local path, the way `ckptsink inspect` receives them.
func ReadFile(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "s3://") {
		return ReadLocalFile(path)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return ReadS3File(ctx, s3.NewFromConfig(cfg), path)
}

func ReadLocalFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func ReadS3File(ctx context.Context, client objstore.S3Service, uri string) ([]byte, error) {
	bucket, key := parseS3URI(uri)
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("S3 URI must include bucket and key: %s", uri)
	}
	return getObject(ctx, client, bucket, key)
}
