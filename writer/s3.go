package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"macroflow/config"
	"macroflow/logger"
	"macroflow/models"
)

// s3Mirror uploads the archival parquet file to an S3-compatible store.
// The local files are already complete when an upload starts, so an upload
// failure never leaves partial local output behind.
type s3Mirror struct {
	client  *s3.Client
	cfg     config.S3Config
	version string
	log     *logger.Entry
}

func newS3Mirror(cfg *config.Config) (*s3Mirror, error) {
	log := logger.GetLogger().WithComponent("writer")

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

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	log.WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("s3 mirror initialized")

	return &s3Mirror{
		client:  client,
		cfg:     cfg.Storage.S3,
		version: cfg.Macroflow.Version,
		log:     log,
	}, nil
}

func (m *s3Mirror) uploadArchive(ctx context.Context, batch models.OutputBatch, filename string, data []byte) (string, error) {
	key := m.archiveKey(batch, filename)

	log := m.log.WithFields(logger.Fields{
		"operation": "upload_archive",
		"s3_key":    key,
		"data_size": len(data),
	})
	log.Info("mirroring archive to S3")

	input := &s3.PutObjectInput{
		Bucket:      aws.String(m.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"run-id":            batch.RunID,
			"source":            batch.Source,
			"records":           strconv.Itoa(len(batch.Records)),
			"macroflow-version": m.version,
		},
	}

	if _, err := m.client.PutObject(ctx, input); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": m.cfg.Bucket}).
			Error("failed to upload to S3")
		return "", fmt.Errorf("failed to upload to S3 bucket %s: %w", m.cfg.Bucket, err)
	}

	logger.IncrementS3Mirror(len(data))
	log.Info("archive mirrored to S3")

	return key, nil
}

// archiveKey partitions mirrored archives by source and by the latest
// observation's year and month.
func (m *s3Mirror) archiveKey(batch models.OutputBatch, filename string) string {
	last := batch.Records[len(batch.Records)-1]

	var parts []string
	if m.cfg.Prefix != "" {
		parts = append(parts, m.cfg.Prefix)
	}
	parts = append(parts,
		fmt.Sprintf("source=%s", batch.Source),
		fmt.Sprintf("year=%04d", last.Year),
		fmt.Sprintf("month=%02d", last.Month),
		filename,
	)

	return filepath.ToSlash(filepath.Join(parts...))
}
