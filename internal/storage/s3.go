package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const defaultRegion = "us-east-1"

// S3Client implements the Client interface using aws-sdk-go-v2
type S3Client struct {
	client *s3.Client
}

// NewS3Client creates a client for AWS S3, or for any S3-compatible service
// when Endpoint is set (path-style addressing is forced in that case).
func NewS3Client(ctx context.Context, cfg Config) (*S3Client, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := endpointURL(cfg.Endpoint, cfg.Secure)
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Client{client: s3.NewFromConfig(awsCfg, clientOpts...)}, nil
}

// endpointURL turns a bare host:port into a URL the SDK accepts
func endpointURL(endpoint string, secure bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if secure {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// GetObject retrieves an object
func (c *S3Client) GetObject(ctx context.Context, bucket, key string) (Object, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apiError(err)
	}

	return &s3Object{
		ReadCloser: out.Body,
		info: ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(out.ContentLength),
			ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
			LastModified: aws.ToTime(out.LastModified),
			ContentType:  aws.ToString(out.ContentType),
		},
	}, nil
}

// PutObject uploads an object in a single request
func (c *S3Client) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(size),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		return apiError(err)
	}
	return nil
}

// ListObjects lists objects with prefix, following continuation tokens
func (c *S3Client) ListObjects(ctx context.Context, bucket, prefix string) (<-chan ObjectInfo, <-chan error) {
	objCh := make(chan ObjectInfo)
	errCh := make(chan error, 1)

	go func() {
		defer close(objCh)
		defer close(errCh)

		input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}

		paginator := s3.NewListObjectsV2Paginator(c.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				errCh <- apiError(err)
				return
			}

			for _, obj := range page.Contents {
				select {
				case objCh <- ObjectInfo{
					Key:          aws.ToString(obj.Key),
					Size:         aws.ToInt64(obj.Size),
					ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
					LastModified: aws.ToTime(obj.LastModified),
				}:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}
	}()

	return objCh, errCh
}

// apiError prefixes SDK errors with the service error code, which is what
// operators grep the log for.
func apiError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("s3 %s: %w", apiErr.ErrorCode(), err)
	}
	return err
}

type s3Object struct {
	io.ReadCloser
	info ObjectInfo
}

func (o *s3Object) Stat() (ObjectInfo, error) {
	return o.info, nil
}
