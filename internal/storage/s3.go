package storage

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	u "savecsv/internal/utils"
)

// S3Store writes to any S3-compatible endpoint and presigns GET URLs.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
}

// NewS3Store builds a client with static credentials from cfg. No network
// call is made here.
func NewS3Store(ctx context.Context, cfg u.S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Store{client: client, presign: s3.NewPresignClient(client)}, nil
}

// Put uploads data. Without Upsert the write is conditional on the key being
// absent.
func (s *S3Store) Put(ctx context.Context, bucket, path string, data []byte, opts PutOptions) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		in.CacheControl = aws.String(opts.CacheControl)
	}
	if !opts.Upsert {
		in.IfNoneMatch = aws.String("*")
	}
	_, err := s.client.PutObject(ctx, in)
	return s3Error(ctx, err)
}

// Sign presigns a GET for bucket/path valid for expiry.
func (s *S3Store) Sign(ctx context.Context, bucket, path string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", s3Error(ctx, err)
	}
	return req.URL, nil
}

func s3Error(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Code: apiErr.ErrorCode(), Message: apiErr.ErrorMessage()}
	}
	return err
}
