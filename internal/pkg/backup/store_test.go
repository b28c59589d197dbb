package backup

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "backups/p1/42/v3.json", SnapshotKey("backups", "p1", "42", 3))
	assert.Equal(t, "backups/p1/42/", WorkflowPrefix("backups", "p1", "42"))
	assert.True(t, strings.HasPrefix(SnapshotKey("", "p1", "42", 1), WorkflowPrefix("", "p1", "42")))
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, config.BackupConfig{Store: ""}, config.S3Config{})
	require.NoError(t, err)
	assert.Equal(t, StoreNone, s.Name())

	s, err = NewStore(ctx, config.BackupConfig{Store: "memory"}, config.S3Config{})
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, s.Name())

	_, err = NewStore(ctx, config.BackupConfig{Store: "s3"}, config.S3Config{})
	assert.Error(t, err)

	_, err = NewStore(ctx, config.BackupConfig{Store: "gcs"}, config.S3Config{})
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "b/p/1/v1.json", []byte("{}")))
	require.NoError(t, s.Put(ctx, "b/p/1/v2.json", []byte("{}")))
	require.NoError(t, s.Put(ctx, "b/p/10/v1.json", []byte("{}")))

	ok, err := s.Exists(ctx, "b/p/1/v2.json")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := s.DeletePrefix(ctx, WorkflowPrefix("b", "p", "1"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"b/p/10/v1.json"}, s.Keys())
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range in.Delete.Objects {
		delete(f.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	s := newS3Store(fake, "bucket")

	ok, err := s.Exists(ctx, "b/p/1/v1.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "b/p/1/v1.json", []byte(`{"nodes":[]}`)))
	ok, err = s.Exists(ctx, "b/p/1/v1.json")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"nodes":[]}`, string(fake.objects["b/p/1/v1.json"]))

	n, err := s.DeletePrefix(ctx, "b/p/1/")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, fake.objects)
}
