// Package report uploads dedupe run reports to S3-compatible object storage.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"qero/api/internal/dedupe"
)

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseSSL    bool
}

// MinioSink implements dedupe.ReportSink.
type MinioSink struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

func NewMinioSink(cfg Config) (*MinioSink, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("report bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: region,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinioSink) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PutRunReport stores the report as JSON under <prefix>/YYYY/MM/DD/<runID>.json.
func (s *MinioSink) PutRunReport(ctx context.Context, report dedupe.RunReport) error {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	key := ObjectKey(s.prefix, report)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"run-status": string(report.Summary.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("upload run report %s: %w", key, err)
	}
	return nil
}

// ObjectKey returns the object key of a report.
func ObjectKey(prefix string, report dedupe.RunReport) string {
	day := report.StartedAt.UTC().Format("2006/01/02")
	return path.Join(prefix, day, report.Summary.RunID+".json")
}
