package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Compile-time check that S3Storage implements Storage.
var _ Storage = (*S3Storage)(nil)

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Storage wraps LocalStorage and stores objects in S3.
// It uses LocalStorage for temporary file operations and S3 for objects.
type S3Storage struct {
	*LocalStorage
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	region  string
}

// NewS3Storage creates a new S3Storage instance.
// The tempDir parameter specifies where temporary files are stored.
// The cfg parameter contains S3 configuration.
func NewS3Storage(ctx context.Context, tempDir string, cfg S3Config) (*S3Storage, error) {
	local, err := NewLocalStorage(tempDir, "", "")
	if err != nil {
		return nil, err
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Storage{
		LocalStorage: local,
		client:       client,
		presign:      s3.NewPresignClient(client),
		bucket:       cfg.Bucket,
		region:       cfg.Region,
	}, nil
}

// Bucket returns the bucket this store addresses.
func (s *S3Storage) Bucket() string {
	return s.bucket
}

// Exists issues a HEAD request for the object.
func (s *S3Storage) Exists(ctx context.Context, path string) (bool, error) {
	key, err := CleanPath(path)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("head S3 object %s/%s: %w", s.bucket, key, err)
	}
	return true, nil
}

// Open streams the object body. The caller must close it.
func (s *S3Storage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	key, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, s.bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get S3 object %s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}

// WriteFile uploads data to S3 under path.
// Seekable readers such as *os.File avoid buffering inside the SDK.
func (s *S3Storage) WriteFile(ctx context.Context, path string, data io.Reader, contentType string) error {
	key, err := CleanPath(path)
	if err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   data,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("upload to S3: %w", err)
	}
	return nil
}

// SignedURL presigns a GET or PUT request for the object.
func (s *S3Storage) SignedURL(ctx context.Context, path string, expiry time.Duration, action Action) (string, error) {
	if err := validAction(action); err != nil {
		return "", err
	}
	key, err := CleanPath(path)
	if err != nil {
		return "", err
	}

	switch action {
	case ActionWrite:
		r, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(expiry))
		if err != nil {
			return "", fmt.Errorf("presign S3 put: %w", err)
		}
		return r.URL, nil
	default:
		r, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(expiry))
		if err != nil {
			return "", fmt.Errorf("presign S3 get: %w", err)
		}
		return r.URL, nil
	}
}

// WithBucket returns a store sharing the client but addressing bucket.
func (s *S3Storage) WithBucket(bucket string) ObjectStore {
	if bucket == "" || bucket == s.bucket {
		return s
	}
	c := *s
	c.bucket = bucket
	return &c
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
