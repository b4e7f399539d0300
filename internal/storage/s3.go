// internal/storage/s3.go
package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/newthinker/s3backup/internal/core"
)

const defaultRegion = "us-east-1"

// S3Config holds S3 connection configuration
type S3Config struct {
	Host      string // host[:port] or full URL; empty means AWS
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// S3Service implements Service for S3-compatible backends
type S3Service struct {
	client *s3.Client
	region string
	prefix string
}

// NewS3 creates a new S3 service client
func NewS3(cfg S3Config) (*S3Service, error) {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		// Many S3-compatible stores reject the optional CRC checksums.
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}

	if endpoint := normalizeEndpoint(cfg.Host, cfg.UseSSL); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true // Required for MinIO and most S3-compatible services
	}

	return &S3Service{
		client: s3.New(opts),
		region: cfg.Region,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3Service) bucket(name string) *s3Bucket {
	return &s3Bucket{client: s.client, name: name, prefix: s.prefix}
}

func (s *S3Service) FindBucket(ctx context.Context, name string) (Bucket, bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return s.bucket(name), true, nil
}

func (s *S3Service) CreateBucket(ctx context.Context, name string) (Bucket, error) {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(name),
	}
	if s.region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			return nil, err
		}
	}
	return s.bucket(name), nil
}

type s3Bucket struct {
	client *s3.Client
	name   string
	prefix string
}

func (b *s3Bucket) Name() string { return b.name }

func (b *s3Bucket) key(path string) string {
	if b.prefix == "" {
		return path
	}
	return b.prefix + "/" + path
}

func (b *s3Bucket) Put(ctx context.Context, key string, content io.Reader) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(b.key(key)),
		Body:        content,
		ContentType: aws.String("application/octet-stream"),
	})
	return err
}

func (b *s3Bucket) List(ctx context.Context) ([]core.Object, error) {
	var objects []core.Object

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
	}
	if b.prefix != "" {
		input.Prefix = aws.String(b.prefix + "/")
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			// Remove prefix to return relative keys
			key := aws.ToString(obj.Key)
			if b.prefix != "" {
				key = strings.TrimPrefix(key, b.prefix+"/")
			}
			objects = append(objects, core.Object{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

func (b *s3Bucket) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(b.key(key)),
	})
	return err
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}

func normalizeEndpoint(host string, useSSL bool) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	scheme := "https://"
	if !useSSL {
		scheme = "http://"
	}
	return scheme + host
}
