package objstore

import (
	"bytes"
	"context"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MemoryS3Service is an in-memory implementation of the S3Service for testing.
// Objects are keyed by "<bucket>/<key>".
type MemoryS3Service struct {
	mu       sync.Mutex
	data     map[string][]byte
	requests map[string]int
	// PageSize limits the keys returned by one ListObjectsV2 call. Zero
	// returns every key at once.
	PageSize int
}

func NewMemoryS3Service() *MemoryS3Service {
	return &MemoryS3Service{
		data:     make(map[string][]byte),
		requests: make(map[string]int),
	}
}

// Requests returns the number of calls made to the named operation.
func (m *MemoryS3Service) Requests(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[op]
}

func (m *MemoryS3Service) CopyObject(ctx context.Context, input *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests["CopyObject"]++

	sourceData, ok := m.data[*input.CopySource]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	m.data[path.Join(*input.Bucket, *input.Key)] = slices.Clone(sourceData)
	return &s3.CopyObjectOutput{}, nil
}

func (m *MemoryS3Service) GetObject(ctx context.Context, input *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests["GetObject"]++

	data, ok := m.data[path.Join(*input.Bucket, *input.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *MemoryS3Service) HeadObject(ctx context.Context, input *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests["HeadObject"]++

	data, ok := m.data[path.Join(*input.Bucket, *input.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (m *MemoryS3Service) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests["ListObjectsV2"]++

	bucketPrefix := *input.Bucket + "/"
	keyPrefix := aws.ToString(input.Prefix)
	start := aws.ToString(input.ContinuationToken)

	var keys []string
	for key := range m.data {
		key, inBucket := strings.CutPrefix(key, bucketPrefix)
		if inBucket && strings.HasPrefix(key, keyPrefix) && key > start {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	out := &s3.ListObjectsV2Output{}
	if m.PageSize > 0 && len(keys) > m.PageSize {
		keys = keys[:m.PageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(m.data[bucketPrefix+key]))),
		})
	}
	out.KeyCount = aws.Int32(int32(len(out.Contents)))
	return out, nil
}

func (m *MemoryS3Service) PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	buf, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests["PutObject"]++
	m.data[path.Join(*input.Bucket, *input.Key)] = buf
	return &s3.PutObjectOutput{}, nil
}

// DeleteObjects removes every listed key. Missing keys count as deleted, as
// they do in S3.
func (m *MemoryS3Service) DeleteObjects(ctx context.Context, input *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests["DeleteObjects"]++

	out := &s3.DeleteObjectsOutput{}
	for _, obj := range input.Delete.Objects {
		delete(m.data, path.Join(*input.Bucket, *obj.Key))
		out.Deleted = append(out.Deleted, types.DeletedObject{Key: obj.Key})
	}
	return out, nil
}

var _ S3Service = (*MemoryS3Service)(nil)
