package s3blob

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/phivault"
)

// fakeClient implements Client over a map, answering with the same typed
// errors the real service returns.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	buckets map[string]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		objects: make(map[string][]byte),
		buckets: make(map[string]bool),
	}
}

func (c *fakeClient) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[*params.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (c *fakeClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (c *fakeClient) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (c *fakeClient) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (c *fakeClient) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buckets[*params.Bucket] {
		return nil, &types.BucketAlreadyOwnedByYou{}
	}
	c.buckets[*params.Bucket] = true
	return &s3.CreateBucketOutput{}, nil
}

func newTestStore(t *testing.T) (*Store, *fakeClient) {
	t.Helper()
	client := newFakeClient()
	return NewWithClient(client, "phi-records"), client
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Upload(ctx, "record.json", []byte("ciphertext"), false))

	data, err := store.Download(ctx, "record.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), data)
}

func TestUploadRespectsOverwrite(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Upload(ctx, "record.json", []byte("v1"), false))

	err := store.Upload(ctx, "record.json", []byte("v2"), false)
	assert.ErrorIs(t, err, phivault.ErrAlreadyExists)

	require.NoError(t, store.Upload(ctx, "record.json", []byte("v2"), true))
	data, err := store.Download(ctx, "record.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestDownloadMissing(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Download(ctx, "absent.json")
	assert.ErrorIs(t, err, phivault.ErrNotFound)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	exists, err := store.Exists(ctx, "record.json")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upload(ctx, "record.json", []byte("ciphertext"), false))

	exists, err = store.Exists(ctx, "record.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteReportsPresence(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	deleted, err := store.Delete(ctx, "record.json")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, store.Upload(ctx, "record.json", []byte("ciphertext"), false))

	deleted, err = store.Delete(ctx, "record.json")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.Download(ctx, "record.json")
	assert.ErrorIs(t, err, phivault.ErrNotFound)
}

func TestEnsureBucketIdempotent(t *testing.T) {
	ctx := context.Background()
	store, client := newTestStore(t)

	require.NoError(t, store.EnsureBucket(ctx))
	assert.True(t, client.buckets["phi-records"])

	// A second call hits BucketAlreadyOwnedByYou and swallows it.
	assert.NoError(t, store.EnsureBucket(ctx))
}
