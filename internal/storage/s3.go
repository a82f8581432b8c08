package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kingrea/configcrunch/document"
)

type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectGetter is the part of the S3 API a repository needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source is a document repository stored below a bucket prefix.
type S3Source struct {
	Client ObjectGetter
	Bucket string
	Prefix string
}

var _ document.Source = (*S3Source)(nil)

// Lookup fetches <prefix>/<ref><ext> for each known extension.
func (s *S3Source) Lookup(ctx context.Context, ref string) (document.Found, bool, error) {
	rel, err := document.CleanRef(ref)
	if err != nil {
		return document.Found{}, false, err
	}
	for _, ext := range document.Extensions {
		key := path.Join(s.Prefix, rel+ext)
		out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return document.Found{}, false, fmt.Errorf("storage: get s3://%s/%s: %w", s.Bucket, key, err)
		}
		data, err := io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return document.Found{}, false, fmt.Errorf("storage: read s3://%s/%s: %w", s.Bucket, key, err)
		}
		return document.Found{Data: data, Location: fmt.Sprintf("s3://%s/%s", s.Bucket, key)}, true, nil
	}
	return document.Found{}, false, nil
}

func (s *S3Source) String() string {
	if s.Prefix == "" {
		return "s3://" + s.Bucket
	}
	return "s3://" + s.Bucket + "/" + s.Prefix
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func createS3Config(ctx context.Context, s3Region string, creds aws.CredentialsProvider) (aws.Config, error) {
	opts := []func(*aws_config.LoadOptions) error{}

	if s3Region != "" {
		opts = append(opts, aws_config.WithRegion(s3Region))
	}

	if creds != nil {
		opts = append(opts, aws_config.WithCredentialsProvider(creds))
	}

	return aws_config.LoadDefaultConfig(ctx, opts...)
}

// NewS3Client builds a client from static credentials when both keys are
// set, the default credential chain otherwise, and falls back to anonymous
// access for public buckets.
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	var creds aws.CredentialsProvider
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	awsCfg, err := createS3Config(ctx, cfg.Region, creds)
	if err != nil {
		return nil, fmt.Errorf("storage: create aws config: %w", err)
	}

	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		awsCfg, err = createS3Config(ctx, cfg.Region, aws.AnonymousCredentials{})
		if err != nil {
			return nil, fmt.Errorf("storage: create aws config with anonymous credentials: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO
		o.UsePathStyle = true
	})
	return client, nil
}

// splitS3URL turns s3://bucket/prefix into its parts.
func splitS3URL(raw string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(raw, s3Scheme)
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("storage: %q has no bucket", raw)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}
