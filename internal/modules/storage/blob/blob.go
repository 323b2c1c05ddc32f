// Package blob stores contribution payloads in an S3-compatible bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	appcfg "github.com/mx-space/capture/internal/config"
)

const (
	defaultRegion    = "us-east-1"
	defaultUploadTTL = 15 * time.Minute
)

var (
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("blob: object not found")
	// ErrTooLarge is returned when the object exceeds the read limit.
	ErrTooLarge = errors.New("blob: object too large")
)

// SignedURL is a time-limited upload URL.
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// Store is an S3 backed blob store.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	ttl       time.Duration
	now       func() time.Time
}

// NewStore builds a store from the storage config. A custom endpoint turns on
// path-style addressing, which most S3-compatible servers need.
func NewStore(cfg appcfg.StorageConfig) (*Store, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("incomplete s3 config: access_key_id and secret_access_key go together")
		}
		opts.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		)
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	if endpoint := normalizeEndpoint(cfg.Endpoint); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}

	client := s3.New(opts)
	ttl := cfg.UploadURLTTL
	if ttl <= 0 {
		ttl = defaultUploadTTL
	}
	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// Download reads the whole object. maxBytes <= 0 disables the size check.
func (s *Store) Download(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	if maxBytes > 0 && out.ContentLength != nil && *out.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, *out.ContentLength, maxBytes)
	}

	var reader io.Reader = out.Body
	if maxBytes > 0 {
		reader = io.LimitReader(out.Body, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit %d", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// SignedUploadURL presigns a PUT for key. The client must send the same
// Content-Type when one is given.
func (s *Store) SignedUploadURL(ctx context.Context, bucket, key, contentType string) (SignedURL, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	expiresAt := s.now().Add(s.ttl)
	req, err := s.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return SignedURL{}, fmt.Errorf("presign put %s/%s: %w", bucket, key, err)
	}
	return SignedURL{URL: req.URL, ExpiresAt: expiresAt}, nil
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return ""
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return strings.TrimSuffix(endpoint, "/")
}
