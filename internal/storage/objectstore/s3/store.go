// Package s3 is the production ObjectStore backed by Amazon S3 or an
// S3-compatible endpoint such as MinIO.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"kycvault/internal/storage/objectstore"
	"kycvault/pkg/platform/sentinel"
)

// API is the subset of the S3 client the store uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Options struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string
	ForcePathStyle  bool
	SSE             string
	KMSKeyID        string
	AccessKeyID     string
	SecretAccessKey string
}

// Store implements ObjectStore using Amazon S3.
type Store struct {
	client   API
	bucket   string
	prefix   string
	sse      s3types.ServerSideEncryption
	kmsKeyID string
}

// New loads AWS configuration and builds an S3-backed store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
		// storage.Manager owns retries and backoff.
		o.Retryer = aws.NopRetryer{}
	})
	return NewWithClient(client, opts), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, opts Options) *Store {
	s := &Store{
		client:   client,
		bucket:   opts.Bucket,
		prefix:   normalizePrefix(opts.Prefix),
		kmsKeyID: strings.TrimSpace(opts.KMSKeyID),
	}
	switch {
	case s.kmsKeyID != "" || strings.EqualFold(opts.SSE, string(s3types.ServerSideEncryptionAwsKms)):
		s.sse = s3types.ServerSideEncryptionAwsKms
	case opts.SSE == "" || strings.EqualFold(opts.SSE, "none"):
		s.sse = ""
	default:
		s.sse = s3types.ServerSideEncryptionAes256
	}
	return s
}

func (s *Store) Put(ctx context.Context, key string, body []byte, opts objectstore.PutOptions) (objectstore.Object, error) {
	objectKey := applyPrefix(s.prefix, key)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		Metadata:      opts.Metadata,
	}
	if s.sse != "" {
		input.ServerSideEncryption = s.sse
	}
	if s.sse == s3types.ServerSideEncryptionAwsKms && s.kmsKeyID != "" {
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return objectstore.Object{}, translate(err, "put", s.bucket, objectKey)
	}
	return objectstore.Object{
		Key:         key,
		Size:        int64(len(body)),
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
		ContentType: contentType,
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey := applyPrefix(s.prefix, key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, translate(err, "get", s.bucket, objectKey)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body key=%s: %w", objectKey, err)
	}
	return b, nil
}

// Delete succeeds for missing keys; S3 itself reports 204 either way.
func (s *Store) Delete(ctx context.Context, key string) error {
	objectKey := applyPrefix(s.prefix, key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if err = translate(err, "delete", s.bucket, objectKey); errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Store) Stat(ctx context.Context, key string) (objectstore.Object, error) {
	objectKey := applyPrefix(s.prefix, key)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return objectstore.Object{}, translate(err, "head", s.bucket, objectKey)
	}
	return objectstore.Object{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(applyPrefix(s.prefix, prefix)),
	})
	var out []objectstore.Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, translate(err, "list", s.bucket, prefix)
		}
		for _, obj := range page.Contents {
			out = append(out, objectstore.Object{
				Key:          stripPrefix(s.prefix, aws.ToString(obj.Key)),
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

func translate(err error, op, bucket, key string) error {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return sentinel.ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return sentinel.ErrNotFound
		}
	}
	err = fmt.Errorf("s3 %s bucket=%s key=%s: %w", op, bucket, key, err)
	if transient(err) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}

// transient reports throttling, 5xx, connection and timeout failures using
// the SDK's own retry classification. Access and bucket errors are permanent.
func transient(err error) bool {
	if retry.IsErrorTimeouts(retry.DefaultTimeouts).IsErrorTimeout(err).Bool() {
		return true
	}
	return retry.IsErrorRetryables(retry.DefaultRetryables).IsErrorRetryable(err).Bool()
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

func stripPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, prefix+"/")
}

var _ objectstore.ObjectStore = (*Store)(nil)
