package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"f2_scrooper/config"
	"f2_scrooper/models"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads documents to S3-compatible storage under a key prefix.
type S3Mirror struct {
	client putObjectAPI
	cfg    config.S3Config
}

func NewS3Mirror(ctx context.Context, cfg config.S3Config) (*S3Mirror, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
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

	return &S3Mirror{client: client, cfg: cfg}, nil
}

func (m *S3Mirror) Name() string {
	return "s3"
}

func (m *S3Mirror) Key(kind models.DataKind) string {
	return m.cfg.Prefix + kind.Filename()
}

func (m *S3Mirror) Publish(ctx context.Context, kind models.DataKind, body []byte, fingerprint string) error {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(m.cfg.Bucket),
		Key:          aws.String(m.Key(kind)),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("public, max-age=60"),
		Metadata:     map[string]string{"fingerprint": fingerprint},
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", m.Key(kind), err)
	}
	return nil
}

// PublicURL returns the public URL for the kind's object.
func (m *S3Mirror) PublicURL(kind models.DataKind) string {
	key := m.Key(kind)
	if m.cfg.Endpoint != "" && strings.Contains(m.cfg.Endpoint, "digitaloceanspaces.com") {
		// DO Spaces: https://{bucket}.{region}.digitaloceanspaces.com/{key}
		host := strings.TrimPrefix(m.cfg.Endpoint, "https://")
		return fmt.Sprintf("https://%s.%s/%s", m.cfg.Bucket, host, key)
	}
	if m.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(m.cfg.Endpoint, "/"), m.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", m.cfg.Bucket, m.cfg.Region, key)
}
