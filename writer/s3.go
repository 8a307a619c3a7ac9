package writer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "optionflow/config"
	"optionflow/logger"
)

// Uploader pushes archive objects to S3. Construction validates that
// usable credentials exist so a misconfigured deployment fails at
// startup, not on the first run.
type Uploader struct {
	config   *appconfig.Config
	s3Client *s3.Client
	ctx      context.Context
	log      *logger.Log
}

func NewUploader(ctx context.Context, cfg *appconfig.Config) (*Uploader, error) {
	log := logger.GetLogger()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	uploader := &Uploader{
		config:   cfg,
		s3Client: s3.NewFromConfig(awsCfg),
		ctx:      ctx,
		log:      log,
	}

	log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"bucket": cfg.Storage.S3.Bucket,
		"region": cfg.Storage.S3.Region,
	}).Info("s3 uploader initialized")
	return uploader, nil
}

// Upload stores one object in the configured bucket. A shutdown during
// an in-flight put is allowed to finish.
func (u *Uploader) Upload(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":       "parquet",
			"optionflow-version": u.config.Optionflow.Version,
		},
	}

	ctx := context.WithoutCancel(u.ctx)
	if _, err := u.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", u.config.Storage.S3.Bucket, err)
	}
	return nil
}
