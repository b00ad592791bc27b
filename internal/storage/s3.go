// Package storage reads and writes audio in S3-compatible object stores.
// Objects are addressed as s3://bucket/key.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"trackscan/internal/audio"
	"trackscan/internal/config"
	applog "trackscan/internal/log"
)

var log = applog.New("storage")

var ErrNotObjectURL = errors.New("not an s3:// URL")

// maxObjectSize bounds downloads; WAV files beyond this are rejected.
const maxObjectSize = 1 << 30

// objectAPI is the subset of *s3.Client used here.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// IsObjectURL reports whether path names an object rather than a local file.
func IsObjectURL(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// ParseURL splits s3://bucket/key.
func ParseURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "s3" {
		return "", "", fmt.Errorf("%w: %q", ErrNotObjectURL, raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q needs a bucket and a key", ErrNotObjectURL, raw)
	}
	return u.Host, key, nil
}

// Client fetches and stores WAV objects.
type Client struct {
	api objectAPI
}

// NewClient builds an S3 client from cfg. A custom endpoint (R2, MinIO)
// and static credentials are used when set; otherwise the default AWS
// credential chain applies.
func NewClient(ctx context.Context, cfg config.StorageConfig) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Client{api: api}, nil
}

// Fetch downloads and decodes the WAV object at rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*audio.Signal, error) {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", rawURL, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	if len(data) > maxObjectSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", rawURL, maxObjectSize)
	}
	log.Debugf("fetched %s (%d bytes)", rawURL, len(data))
	return audio.DecodeWAV(bytes.NewReader(data))
}

// Upload stores body at rawURL.
func (c *Client) Upload(ctx context.Context, rawURL string, body io.Reader, contentType string) error {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return err
	}
	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to %s: %w", rawURL, err)
	}
	log.Infof("uploaded %s", rawURL)
	return nil
}

// Loader opens local WAV files and, when a client is configured, objects.
type Loader struct {
	Objects *Client // nil rejects s3:// paths.
}

// Load decodes the WAV at path.
func (l Loader) Load(ctx context.Context, path string) (*audio.Signal, error) {
	if !IsObjectURL(path) {
		return audio.DecodeFile(path)
	}
	if l.Objects == nil {
		return nil, fmt.Errorf("cannot read %s: no object store configured", path)
	}
	return l.Objects.Fetch(ctx, path)
}
