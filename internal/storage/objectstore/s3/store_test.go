package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycvault/internal/storage/objectstore"
	"kycvault/pkg/platform/sentinel"
)

// fakeS3 keeps objects in memory and records the last put input.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	lastPut *s3.PutObjectInput
	putErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = b
	f.lastPut = in
	return &s3.PutObjectOutput{ETag: aws.String(`"etag-1"`)}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(b))), ETag: aws.String(`"etag-1"`)}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for k, b := range f.objects {
		if len(k) >= len(aws.ToString(in.Prefix)) && k[:len(aws.ToString(in.Prefix))] == aws.ToString(in.Prefix) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(b)))})
		}
	}
	return out, nil
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := NewWithClient(fake, Options{Bucket: "kyc", Prefix: "/tenant-a/", SSE: "AES256"})

	obj, err := store.Put(ctx, "documents/a.pdf", []byte("cipher"), objectstore.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, "etag-1", obj.ETag)
	assert.Equal(t, "tenant-a/documents/a.pdf", aws.ToString(fake.lastPut.Key))
	assert.Equal(t, s3types.ServerSideEncryptionAes256, fake.lastPut.ServerSideEncryption)

	got, err := store.Get(ctx, "documents/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("cipher"), got)

	stat, err := store.Stat(ctx, "documents/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(6), stat.Size)

	objs, err := store.List(ctx, "documents")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "documents/a.pdf", objs[0].Key)

	require.NoError(t, store.Delete(ctx, "documents/a.pdf"))
	_, err = store.Get(ctx, "documents/a.pdf")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = store.Stat(ctx, "documents/a.pdf")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestServerSideEncryptionSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("kms key implies aws:kms", func(t *testing.T) {
		fake := newFakeS3()
		store := NewWithClient(fake, Options{Bucket: "kyc", KMSKeyID: "alias/kyc"})
		_, err := store.Put(ctx, "k", []byte("x"), objectstore.PutOptions{})
		require.NoError(t, err)
		assert.Equal(t, s3types.ServerSideEncryptionAwsKms, fake.lastPut.ServerSideEncryption)
		assert.Equal(t, "alias/kyc", aws.ToString(fake.lastPut.SSEKMSKeyId))
	})

	t.Run("none disables sse for minio", func(t *testing.T) {
		fake := newFakeS3()
		store := NewWithClient(fake, Options{Bucket: "kyc", SSE: "none"})
		_, err := store.Put(ctx, "k", []byte("x"), objectstore.PutOptions{})
		require.NoError(t, err)
		assert.Empty(t, fake.lastPut.ServerSideEncryption)
	})
}

func TestErrorClassification(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "throttling", err: &smithy.GenericAPIError{Code: "ThrottlingException"}, transient: true},
		{name: "request timeout", err: &smithy.GenericAPIError{Code: "RequestTimeout"}, transient: true},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, transient: false},
		{name: "missing bucket", err: &smithy.GenericAPIError{Code: "NoSuchBucket"}, transient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeS3()
			fake.putErr = tt.err
			store := NewWithClient(fake, Options{Bucket: "kyc"})
			_, err := store.Put(ctx, "k", []byte("x"), objectstore.PutOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.transient, errors.Is(err, sentinel.ErrUnavailable))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "documents/a.pdf", want: "documents/a.pdf"},
		{name: "simple prefix", prefix: "root", key: "documents/a.pdf", want: "root/documents/a.pdf"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/documents/a.pdf", want: "root/documents/a.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, applyPrefix(tt.prefix, tt.key))
		})
	}
}
