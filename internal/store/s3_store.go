package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store persists checkpoints in an S3-compatible bucket (AWS S3 or MinIO).
// Object keys follow the filesystem layout: <prefix>jobs/<jobID>/checkpoint.json.
//
// The Store interface carries no context, so each operation runs under its
// own deadline derived from OpTimeout.
type S3Store struct {
	client    *s3.Client
	bucket    string
	prefix    string
	opTimeout time.Duration
}

// S3Config holds explicit construction parameters, mostly for tests. For
// production use the environment variables read by OpenS3FromEnv.
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional; enables a custom endpoint (e.g. MinIO)
	PathStyle bool
	Prefix    string        // optional key prefix inside the bucket
	OpTimeout time.Duration // per-operation deadline (default 30s)
}

// NewS3Store creates an S3 checkpoint store from S3Config. Credentials come
// from the default AWS chain (environment, shared config, instance role).
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: prefix, opTimeout: timeout}, nil
}

// OpenS3FromEnv constructs an S3 store from the process environment.
//
//	SHAPEMC_S3_BUCKET=<bucket> (required)
//	SHAPEMC_S3_REGION=<region> (default us-east-1)
//	SHAPEMC_S3_ENDPOINT=<url> (optional, for MinIO)
//	SHAPEMC_S3_PATH_STYLE=true|false (default false)
//	SHAPEMC_S3_PREFIX=<key prefix> (optional)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)
func OpenS3FromEnv(ctx context.Context) (*S3Store, error) {
	bucket := os.Getenv("SHAPEMC_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("SHAPEMC_S3_BUCKET required for s3 driver")
	}
	cfg := S3Config{
		Bucket:    bucket,
		Region:    os.Getenv("SHAPEMC_S3_REGION"),
		Endpoint:  os.Getenv("SHAPEMC_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("SHAPEMC_S3_PATH_STYLE"), "true"),
		Prefix:    os.Getenv("SHAPEMC_S3_PREFIX"),
	}
	return NewS3Store(ctx, cfg)
}

func (s *S3Store) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opTimeout)
}

func (s *S3Store) checkpointKey(jobID string) string {
	return s.prefix + path.Join("jobs", jobID, "checkpoint.json")
}

func (s *S3Store) traceKey(jobID string) string {
	return s.prefix + path.Join("jobs", jobID, "trace.jsonl")
}

// SaveCheckpoint puts the serialized checkpoint object. S3 object writes are
// atomic per key, so no rename dance is needed.
func (s *S3Store) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	ctx, cancel := s.opContext()
	defer cancel()

	key := s.checkpointKey(jobID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        strings.NewReader(string(data)),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put checkpoint object: %w", err)
	}

	slog.Debug("Checkpoint saved", "jobID", jobID, "step", checkpoint.Step, "backend", "s3", "key", key)
	return nil
}

// LoadCheckpoint gets and deserializes the checkpoint object.
func (s *S3Store) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	ctx, cancel := s.opContext()
	defer cancel()

	key := s.checkpointKey(jobID)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, &NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("failed to get checkpoint object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint object: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// ListCheckpoints pages through the jobs prefix and loads each checkpoint's
// metadata, ordered by job ID. Unreadable checkpoints are logged and
// skipped.
func (s *S3Store) ListCheckpoints() ([]CheckpointInfo, error) {
	ctx, cancel := s.opContext()
	defer cancel()

	listPrefix := s.prefix + "jobs/"
	var jobIDs []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &listPrefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list checkpoint objects: %w", err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			rest, ok := strings.CutPrefix(key, listPrefix)
			if !ok {
				continue
			}
			jobID, ok := strings.CutSuffix(rest, "/checkpoint.json")
			if !ok || strings.Contains(jobID, "/") {
				continue
			}
			jobIDs = append(jobIDs, jobID)
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(jobIDs)

	infos := []CheckpointInfo{}
	for _, jobID := range jobIDs {
		checkpoint, err := s.LoadCheckpoint(jobID)
		if err != nil {
			slog.Warn("Failed to load checkpoint for listing", "jobID", jobID, "error", err)
			continue
		}
		infos = append(infos, checkpoint.ToInfo())
	}
	return infos, nil
}

// DeleteCheckpoint removes the checkpoint object and the trace object if
// one exists.
func (s *S3Store) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	ctx, cancel := s.opContext()
	defer cancel()

	key := s.checkpointKey(jobID)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		if isNoSuchKey(err) {
			return &NotFoundError{JobID: jobID}
		}
		return fmt.Errorf("failed to stat checkpoint object: %w", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return fmt.Errorf("failed to delete checkpoint object: %w", err)
	}
	traceKey := s.traceKey(jobID)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &traceKey}); err != nil {
		slog.Warn("Failed to delete trace object", "jobID", jobID, "error", err)
	}

	slog.Debug("Checkpoint deleted", "jobID", jobID, "backend", "s3", "key", key)
	return nil
}

// isNoSuchKey reports whether the error is any flavor of missing-object
// error the SDK produces (NoSuchKey from GetObject, NotFound from
// HeadObject).
func isNoSuchKey(err error) bool {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *s3types.NotFound
	return errors.As(err, &notFound)
}
