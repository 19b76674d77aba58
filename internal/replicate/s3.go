package replicate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dueskeeper/dueskeeper/internal/common"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// s3API is the subset of the S3 client this backend uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds connection settings for an S3-compatible object store.
type S3Config struct {
	Bucket       string
	Key          string
	Region       string
	BaseEndpoint string // e.g. "http://127.0.0.1:9000/" for MinIO
	AccessKey    string
	SecretKey    string
}

// S3 is a RemoteClient storing the snapshot as a single object. The revision
// marker is the object's ETag, enforced with conditional writes: IfMatch on
// update, IfNoneMatch("*") on create.
type S3 struct {
	api    s3API
	bucket string
	key    string
}

// NewS3 builds a client for the configured bucket/key.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
	})

	return &S3{api: client, bucket: cfg.Bucket, key: cfg.Key}, nil
}

// Get downloads the snapshot object and its ETag.
func (c *S3) Get(ctx context.Context) ([]byte, string, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &c.key,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, "", common.ErrNotFound
		}
		return nil, "", fmt.Errorf("s3 get: %w", err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("s3 get: read body: %w", err)
	}

	return content, aws.ToString(out.ETag), nil
}

// Put uploads the snapshot object conditionally on the given ETag.
func (c *S3) Put(ctx context.Context, content []byte, rev string) error {
	in := &s3.PutObjectInput{
		Bucket:      &c.bucket,
		Key:         &c.key,
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/json"),
	}
	if rev == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(rev)
	}

	if _, err := c.api.PutObject(ctx, in); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return common.ErrRevisionConflict
		}
		return fmt.Errorf("s3 put: %w", err)
	}
	return nil
}
