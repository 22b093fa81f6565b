// Package storage inspects the provisioned object-storage backend directly,
// so the archive's file listing can be compared against what the bucket
// actually holds.
package storage

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsV2Config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/dandi/zarr-path-conflicts/pkg/config"
)

// RemoteObject is one object found under a verified prefix.
type RemoteObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// S3 - direct client for the MinIO backend behind the archive.
type S3 struct {
	client *s3.Client
	Config *config.StorageConfig
}

func NewS3(cfg *config.StorageConfig) *S3 {
	return &S3{Config: cfg}
}

// Connect - connect to the object storage endpoint
func (s *S3) Connect(ctx context.Context) error {
	awsConfig, err := awsV2Config.LoadDefaultConfig(
		ctx,
		awsV2Config.WithRetryMode(aws.RetryModeStandard),
	)
	if err != nil {
		return err
	}
	if s.Config.Region != "" {
		awsConfig.Region = s.Config.Region
	}
	if s.Config.AccessKey != "" && s.Config.SecretKey != "" {
		awsConfig.Credentials = credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     s.Config.AccessKey,
				SecretAccessKey: s.Config.SecretKey,
			},
		}
	}
	s.client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = s.Config.ForcePathStyle
		if s.Config.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Config.Endpoint)
		}
	})
	return nil
}

func (s *S3) Close(_ context.Context) error {
	return nil
}

// WalkPrefix calls process for every object below prefix in the configured bucket.
func (s *S3) WalkPrefix(ctx context.Context, prefix string, process func(ctx context.Context, obj RemoteObject) error) error {
	if s.client == nil {
		return errors.New("storage is not connected")
	}
	params := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.Config.Bucket),
		MaxKeys: aws.Int32(1000),
		Prefix:  aws.String(prefix),
	}
	pager := s3.NewListObjectsV2Paginator(s.client, params, func(o *s3.ListObjectsV2PaginatorOptions) {
		o.Limit = 1000
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, c := range page.Contents {
			obj := RemoteObject{Key: *c.Key}
			if c.Size != nil {
				obj.Size = *c.Size
			}
			if c.LastModified != nil {
				obj.LastModified = *c.LastModified
			}
			if err := process(ctx, obj); err != nil {
				return err
			}
		}
	}
	return nil
}
