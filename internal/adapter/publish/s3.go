package publish

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// putObjectAPI is the subset of the S3 client used for uploads.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads assets to an S3 (or S3-compatible) bucket.
type S3 struct {
	client putObjectAPI
	bucket string
	logger *slog.Logger
}

// NewS3 loads the default AWS credential chain. A non-empty endpoint switches
// to path-style addressing for S3-compatible stores.
func NewS3(ctx context.Context, opts Options, logger *slog.Logger) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 publisher: bucket is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}
	return newS3WithClient(s3.NewFromConfig(cfg, s3Opts...), opts.Bucket, logger), nil
}

func newS3WithClient(client putObjectAPI, bucket string, logger *slog.Logger) *S3 {
	return &S3{client: client, bucket: bucket, logger: logger}
}

func (p *S3) Publish(ctx context.Context, asset domain.PublishedAsset) (domain.PublishedAsset, error) {
	f, err := openAsset(asset)
	if err != nil {
		return asset, err
	}
	defer f.Close()

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(asset.ObjectName),
		Body:        f,
		ContentType: aws.String(contentType),
		Metadata:    asset.Metadata,
	})
	if err != nil {
		return asset, domain.Transient(fmt.Errorf("put s3://%s/%s: %w", p.bucket, asset.ObjectName, err))
	}
	asset.Bucket = p.bucket
	asset.URI = fmt.Sprintf("s3://%s/%s", p.bucket, asset.ObjectName)
	p.logger.Info("asset uploaded", "uri", asset.URI)
	return asset, nil
}

func (p *S3) Close() error { return nil }
