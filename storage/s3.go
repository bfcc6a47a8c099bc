package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"apt_scrooper/config"
	"apt_scrooper/httputil"
)

// Archiver keeps a copy of rendered pages that produced no usable data, so
// selector breakage can be diagnosed after the fact.
type Archiver interface {
	Archive(ctx context.Context, provider, pageURL string, html []byte) (string, error)
}

// NoOpArchiver drops everything. Used when no bucket is configured.
type NoOpArchiver struct{}

func (NoOpArchiver) Archive(context.Context, string, string, []byte) (string, error) {
	return "", nil
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client s3API
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Archiver(ctx context.Context, cfg config.S3Config) (*S3Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, now: time.Now}, nil
}

// NewArchiver returns an S3Archiver when a bucket is configured.
func NewArchiver(ctx context.Context, cfg config.S3Config) (Archiver, error) {
	if !cfg.Enabled() {
		return NoOpArchiver{}, nil
	}
	return NewS3Archiver(ctx, cfg)
}

func (a *S3Archiver) Archive(ctx context.Context, provider, pageURL string, html []byte) (string, error) {
	key := a.key(provider, pageURL)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(html),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

// key is <prefix>/<provider>/<host>/<yyyymmddThhmmss>.html
func (a *S3Archiver) key(provider, pageURL string) string {
	host := httputil.HostOf(pageURL)
	if host == "" {
		host = "unknown"
	}
	host = strings.ReplaceAll(host, ":", "_")
	stamp := a.now().UTC().Format("20060102T150405")
	return path.Join(a.prefix, provider, host, stamp+".html")
}
