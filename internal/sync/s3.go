package sync

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Destination uploads sample files to an S3-compatible bucket.
type S3Destination struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Destination creates an S3 destination storing objects under prefix.
// If endpoint is non-empty, path-style addressing is enabled (for MinIO and
// similar).
func NewS3Destination(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Destination, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 destination: bucket is required (set SGCACHE_S3_BUCKET or sync.s3_bucket)")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Destination{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (d *S3Destination) String() string { return "s3://" + path.Join(d.bucket, d.prefix) }

// Write uploads every file as prefix + key.
func (d *S3Destination) Write(ctx context.Context, files []File) error {
	for _, f := range files {
		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(d.bucket),
			Key:         aws.String(d.prefix + f.Key),
			Body:        bytes.NewReader(f.Data),
			ContentType: aws.String(contentType(f.Key)),
		})
		if err != nil {
			return fmt.Errorf("s3 put object %s: %w", f.Key, err)
		}
	}
	return nil
}

func contentType(key string) string {
	if path.Ext(key) == ".jsonl" {
		return "application/x-ndjson"
	}
	return "application/octet-stream"
}
