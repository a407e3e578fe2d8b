package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3KeyPrefix = "runs/"

// S3Config holds explicit construction parameters, mostly for tests; the
// production path goes through environment variables.
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional, enables a custom endpoint (MinIO)
	PathStyle bool
}

// S3 stores one object per run in a single bucket under the runs/ prefix.
type S3 struct {
	client *s3.Client
	bucket string
}

// Environment variables:
//
//	CROPCORE_ARCHIVE_DRIVER=s3
//	CROPCORE_ARCHIVE_S3_BUCKET=<bucket> (required)
//	CROPCORE_ARCHIVE_S3_REGION=<region> (default us-east-1)
//	CROPCORE_ARCHIVE_S3_ENDPOINT=<url> (optional, for MinIO)
//	CROPCORE_ARCHIVE_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// NewS3 creates an S3 archive from S3Config.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

// OpenS3FromEnv constructs an S3 archive from the process environment.
func OpenS3FromEnv(ctx context.Context) (*S3, error) {
	bucket := os.Getenv("CROPCORE_ARCHIVE_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("CROPCORE_ARCHIVE_S3_BUCKET required for s3 driver")
	}
	return NewS3(ctx, S3Config{
		Bucket:    bucket,
		Region:    os.Getenv("CROPCORE_ARCHIVE_S3_REGION"),
		Endpoint:  os.Getenv("CROPCORE_ARCHIVE_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("CROPCORE_ARCHIVE_S3_PATH_STYLE"), "true"),
	})
}

func (s *S3) Driver() Driver { return DriverS3 }

func (s *S3) keyFor(runID string) (string, error) {
	if err := validateRunID(runID); err != nil {
		return "", err
	}
	return s3KeyPrefix + runID + ".json", nil
}

func (s *S3) SaveRun(ctx context.Context, run RunArtifacts) (Info, error) {
	key, err := s.keyFor(run.RunID)
	if err != nil {
		return Info{}, err
	}
	// immutability emulated with a Head before the Put
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key}); err == nil {
		return Info{}, fmt.Errorf("run %s already archived", run.RunID)
	}
	if run.StoredAt.IsZero() {
		run.StoredAt = time.Now().UTC()
	}
	b, err := json.Marshal(run)
	if err != nil {
		return Info{}, err
	}
	contentType := "application/json"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(b),
		ContentType: &contentType,
	})
	if err != nil {
		return Info{}, err
	}
	return Info{RunID: run.RunID, Size: int64(len(b)), StoredAt: run.StoredAt}, nil
}

func (s *S3) LoadRun(ctx context.Context, runID string) (RunArtifacts, error) {
	key, err := s.keyFor(runID)
	if err != nil {
		return RunArtifacts{}, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return RunArtifacts{}, ErrNotFound{RunID: runID}
	}
	defer func() { _ = out.Body.Close() }()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return RunArtifacts{}, err
	}
	var run RunArtifacts
	if err := json.Unmarshal(b, &run); err != nil {
		return RunArtifacts{}, err
	}
	return run, nil
}

func (s *S3) ListRuns(ctx context.Context) ([]Info, error) {
	var infos []Info
	var token *string
	prefix := s3KeyPrefix
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			id := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(obj.Key), s3KeyPrefix), ".json")
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			infos = append(infos, Info{RunID: id, Size: size, StoredAt: aws.ToTime(obj.LastModified)})
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].RunID < infos[j].RunID })
	return infos, nil
}

func (s *S3) Delete(ctx context.Context, runID string) (bool, error) {
	key, err := s.keyFor(runID)
	if err != nil {
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return false, err
	}
	return true, nil
}
