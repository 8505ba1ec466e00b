package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/crossposthq/crosspost/configs"
)

// MediaStore uploads post media to durable storage and returns its
// public URL.
type MediaStore interface {
	Upload(ctx context.Context, key string, file []byte, contentType string) (string, error)
}

type R2Service struct {
	config cfg.Config
}

func NewR2Service(cfg cfg.Config) *R2Service {
	return &R2Service{config: cfg}
}

func (r *R2Service) client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.R2.AccessKey, r.config.R2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.R2.AccountID))
	}), nil
}

func (r *R2Service) Upload(ctx context.Context, key string, file []byte, contentType string) (string, error) {
	r2Client, err := r.client(ctx)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(contentType),
	}

	_, err = r2Client.PutObject(ctx, input)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return fmt.Sprintf("%s/%s", r.config.R2.PublicURL, key), nil
}
