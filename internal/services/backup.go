package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parking-bot/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrBadSnapshot is returned when a backup document does not decode
var ErrBadSnapshot = errors.New("invalid backup file")

// ObjectUploader stores a backup object
type ObjectUploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// S3Config holds object storage settings
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// S3Uploader puts backups into an S3 compatible bucket
type S3Uploader struct {
	client *s3.Client
	bucket string
}

// NewS3Uploader creates an uploader. Static credentials and a custom endpoint
// are used when set, otherwise the default AWS chain applies.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			},
		}))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &S3Uploader{client: client, bucket: cfg.Bucket}, nil
}

// Upload puts one object
func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}
	return nil
}

// BackupService exports, ships and restores database snapshots
type BackupService struct {
	snapshots SnapshotStore
	uploader  ObjectUploader
	notifier  Notifier
	admins    []int64
}

// NewBackupService creates a backup service. uploader may be nil, in which case
// periodic backups are delivered to the admins.
func NewBackupService(snapshots SnapshotStore, uploader ObjectUploader, notifier Notifier, admins []int64) *BackupService {
	return &BackupService{
		snapshots: snapshots,
		uploader:  uploader,
		notifier:  notifier,
		admins:    admins,
	}
}

// Build exports the database as a JSON document
func (s *BackupService) Build(ctx context.Context, now time.Time) (*Document, error) {
	snap, err := s.snapshots.Export(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to export snapshot: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return &Document{
		Name:    fmt.Sprintf("parking_backup_%s.json", now.UTC().Format("20060102_150405")),
		Content: data,
	}, nil
}

// Restore decodes a backup document and replays it into the database
func (s *BackupService) Restore(ctx context.Context, raw []byte) (models.ImportCounts, error) {
	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return models.ImportCounts{}, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	return s.snapshots.Import(ctx, &snap)
}

// Run makes a periodic backup and ships it to object storage or to the admins
func (s *BackupService) Run(ctx context.Context, now time.Time) error {
	doc, err := s.Build(ctx, now)
	if err != nil {
		return err
	}

	if s.uploader != nil {
		key := fmt.Sprintf("backups/%s_%s.json", now.UTC().Format("20060102T150405Z"), uuid.New().String())
		if err := s.uploader.Upload(ctx, key, doc.Content, "application/json"); err != nil {
			return err
		}
		log.Info().Str("key", key).Int("bytes", len(doc.Content)).Msg("Backup uploaded")
		return nil
	}

	delivered := 0
	for _, adminID := range s.admins {
		err := s.notifier.Notify(ctx, adminID, Notification{Text: "📦 Automatic database backup", Document: doc})
		if err != nil {
			log.Warn().Err(err).Int64("user_id", adminID).Msg("Failed to deliver backup")
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("backup was not delivered to any admin: %w", ErrUnreachable)
	}
	log.Info().Int("admins", delivered).Msg("Backup delivered")
	return nil
}
