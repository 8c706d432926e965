package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// statementPrefix is where uploaded statements live in the bucket
const statementPrefix = "statements"

// ErrInvalidStatementKey means a key is empty or outside the owner's prefix
var ErrInvalidStatementKey = errors.New("invalid statement key")

// StorageService archives statement files in S3. Clients upload through a
// presigned PUT and preview reads the object back by key.
type StorageService struct {
	s3Client *s3.Client
	bucket   string
	region   string
	now      func() time.Time
}

// NewStorageService creates a storage service.
// For LocalStack pass endpoint "http://localhost:4566"; for AWS pass "".
func NewStorageService(ctx context.Context, bucket, region, endpoint string) (*StorageService, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}
	if region == "" {
		return nil, fmt.Errorf("region cannot be empty")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		// LocalStack accepts any static credentials
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &StorageService{
		s3Client: client,
		bucket:   bucket,
		region:   region,
		now:      time.Now,
	}, nil
}

// StatementKey builds a unique key for an uploaded statement.
// Format: statements/{owner}/{yyyy-mm}/{unix}-{uuid8}-{name}{ext}
func (s *StorageService) StatementKey(owner, filename string) (string, error) {
	if owner == "" {
		return "", fmt.Errorf("owner cannot be empty")
	}
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	base := sanitizeKeyPart(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))

	now := time.Now().UTC()
	if s.now != nil {
		now = s.now().UTC()
	}

	return fmt.Sprintf("%s/%s/%s/%d-%s-%s%s",
		statementPrefix, sanitizeKeyPart(owner), now.Format("2006-01"),
		now.Unix(), uuid.New().String()[:8], base, ext), nil
}

// OwnsKey reports whether key sits under the owner's statement prefix
func OwnsKey(owner, key string) bool {
	if owner == "" || strings.Contains(key, "..") {
		return false
	}
	return strings.HasPrefix(key, fmt.Sprintf("%s/%s/", statementPrefix, sanitizeKeyPart(owner)))
}

// StatementFilename recovers the uploaded file name from a statement key
func StatementFilename(key string) string {
	name := filepath.Base(key)
	// Drop the "{unix}-{uuid8}-" prefix
	if parts := strings.SplitN(name, "-", 3); len(parts) == 3 {
		return parts[2]
	}
	return name
}

// sanitizeKeyPart keeps letters, digits, dashes and underscores
func sanitizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, s)
}

// PresignUpload returns a presigned PUT URL for a statement key
func (s *StorageService) PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	if key == "" {
		return "", ErrInvalidStatementKey
	}
	if expiry <= 0 {
		return "", fmt.Errorf("expiry must be greater than 0")
	}
	if s.s3Client == nil {
		return "", fmt.Errorf("s3 client is not initialized")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := s3.NewPresignClient(s.s3Client).PresignPutObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return req.URL, nil
}

// Archive stores a statement body under key
func (s *StorageService) Archive(ctx context.Context, key string, body io.Reader, contentType string) error {
	if key == "" {
		return ErrInvalidStatementKey
	}
	if s.s3Client == nil {
		return fmt.Errorf("s3 client is not initialized")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to archive statement: %w", err)
	}
	return nil
}

// Open returns a reader for an archived statement. The caller closes it.
func (s *StorageService) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, ErrInvalidStatementKey
	}
	if s.s3Client == nil {
		return nil, fmt.Errorf("s3 client is not initialized")
	}

	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download statement: %w", err)
	}
	return out.Body, nil
}
