// Package avatar stores profile pictures in an S3-compatible bucket through
// presigned URLs. Profiles only carry the short s3://bucket/key reference.
package avatar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mirokugang/mukon/internal/netx"
	"github.com/mirokugang/mukon/internal/program"
)

var ErrInvalidReference = errors.New("invalid avatar reference")

const scheme = "s3://"

// Config locates the bucket. BaseEndpoint is set for MinIO and other
// non-AWS stores.
type Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
	Expires      time.Duration
}

// indirections for tests
var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
	newS3PresignClient    = func(c *s3.Client) presigner { return s3.NewPresignClient(c) }
)

type presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Store struct {
	cfg     Config
	presign presigner
	http    *http.Client
}

func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("avatar bucket is not configured")
	}
	if cfg.Expires <= 0 {
		cfg.Expires = 15 * time.Minute
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{cfg: cfg, presign: newS3PresignClient(client), http: &http.Client{Timeout: time.Minute}}, nil
}

// Key names an object by content, so uploading the same picture twice
// yields the same reference.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return "avatars/" + hex.EncodeToString(sum[:16])
}

// Reference is the profile field value for key.
func (s *Store) Reference(key string) string {
	return scheme + s.cfg.Bucket + "/" + key
}

// ParseReference splits an s3://bucket/key reference.
func ParseReference(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return bucket, key, nil
}

// Upload stores data and returns its profile reference.
func (s *Store) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	key := Key(data)
	ref := s.Reference(key)
	if len(ref) > program.MaxAvatarLen {
		return "", fmt.Errorf("%w: reference longer than %d bytes", ErrInvalidReference, program.MaxAvatarLen)
	}

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.cfg.Expires))
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}

	if err := netx.UploadToPresignedURL(ctx, s.http, req.URL, data, contentType); err != nil {
		return "", err
	}
	return ref, nil
}

// DownloadURL presigns a GET for ref.
func (s *Store) DownloadURL(ctx context.Context, ref string) (string, error) {
	bucket, key, err := ParseReference(ref)
	if err != nil {
		return "", err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.cfg.Expires))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}
