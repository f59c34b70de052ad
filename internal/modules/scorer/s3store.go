package scorer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/aristath/tenderwatch/internal/config"
)

// S3Store keeps the bundle in an S3-compatible bucket (AWS, R2, MinIO)
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	key        string
	log        zerolog.Logger
}

// NewS3Store builds a client from static credentials when given, otherwise
// from the default AWS credential chain. A custom endpoint switches to
// path-style addressing.
func NewS3Store(ctx context.Context, cfg config.S3Config, log zerolog.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     cfg.Bucket,
		key:        path.Join(cfg.Prefix, BundleFile),
		log:        log.With().Str("component", "model_store").Logger(),
	}, nil
}

// Location returns the s3:// URI of the bundle
func (s *S3Store) Location() string {
	return "s3://" + s.bucket + "/" + s.key
}

// Load downloads the bundle
func (s *S3Store) Load(ctx context.Context) (*ModelBundle, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to download model bundle from %s: %w", s.Location(), err)
	}
	return DecodeBundle(buf.Bytes())
}

// Save uploads the bundle
func (s *S3Store) Save(ctx context.Context, b *ModelBundle) error {
	data, err := b.Encode()
	if err != nil {
		return err
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-msgpack"),
		Metadata: map[string]string{
			"run-id":       b.RunID,
			"label-source": b.LabelSource,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload model bundle to %s: %w", s.Location(), err)
	}

	s.log.Info().Str("location", s.Location()).Str("run_id", b.RunID).Int("bytes", len(data)).Msg("Model bundle uploaded")
	return nil
}
