package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/atmx/ranking-engine/internal/model"
)

var ErrNoBucket = errors.New("export: no S3 bucket configured")

// objectUploader is the part of manager.Uploader used here.
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Uploader stores leaderboard CSV snapshots in a bucket under
// <prefix>/<period>/<metric>/<timestamp>-<id>.csv.
type S3Uploader struct {
	uploader objectUploader
	bucket   string
	prefix   string
}

// NewS3Uploader loads AWS credentials from the default chain.
func NewS3Uploader(ctx context.Context, bucket, prefix, region string) (*S3Uploader, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("export: load aws config: %w", err)
	}
	return newS3Uploader(manager.NewUploader(s3.NewFromConfig(cfg)), bucket, prefix), nil
}

func newS3Uploader(u objectUploader, bucket, prefix string) *S3Uploader {
	return &S3Uploader{uploader: u, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Upload writes the leaderboard as CSV and returns the object key.
func (u *S3Uploader) Upload(ctx context.Context, lb model.Leaderboard) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, lb); err != nil {
		return "", err
	}

	key := u.objectKey(lb)
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("export: upload s3://%s/%s: %w", u.bucket, key, err)
	}

	slog.Info("leaderboard exported",
		"bucket", u.bucket,
		"key", key,
		"entries", len(lb.Entries),
	)
	return key, nil
}

func (u *S3Uploader) objectKey(lb model.Leaderboard) string {
	ts := lb.GeneratedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	name := ts.UTC().Format("20060102T150405Z") + "-" + uuid.NewString() + ".csv"
	return path.Join(u.prefix, lb.Period, lb.Metric, name)
}
