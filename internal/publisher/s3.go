package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/services"
)

// s3Backend archives artifacts under s3://bucket/prefix/<room>/<uuid>/.
type s3Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func newS3Backend(ctx context.Context, account config.Account, logger *slog.Logger) (*s3Backend, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(account.Region),
	}
	if account.AccessKeyID != "" && account.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			account.AccessKeyID, account.SecretAccessKey, "",
		)))
	} else {
		logger.Debug("s3 account using default credential chain", logging.String("bucket", account.Bucket))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "load aws config", account.Bucket, err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if account.BaseURL != "" {
			o.BaseEndpoint = aws.String(account.BaseURL)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	return &s3Backend{client: client, uploader: uploader, bucket: account.Bucket, prefix: account.Prefix}, nil
}

func (b *s3Backend) key(artifactID, object string) (string, error) {
	room, id, err := splitArtifactID(artifactID)
	if err != nil {
		return "", err
	}
	roomID, err := strconv.ParseInt(room, 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed archive artifact id %q", artifactID)
	}
	return path.Join(artifactPrefix(b.prefix, roomID, id), object), nil
}

func (b *s3Backend) put(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	return err
}

func (b *s3Backend) putFile(ctx context.Context, key, contentType, src string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()
	return b.put(ctx, key, contentType, file)
}

func (b *s3Backend) publish(ctx context.Context, upload Upload) (string, error) {
	artifactID := upload.ArtifactID
	if artifactID == "" {
		artifactID = strconv.FormatInt(upload.RoomID, 10) + "/" + uuid.NewString()
	}
	videoKey, err := b.key(artifactID, videoObject(upload))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "publish", "archive", "", err)
	}
	if err := b.putFile(ctx, videoKey, "video/mp4", upload.Video); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "publish", "upload video", videoKey, err)
	}
	if upload.Thumbnail != "" {
		key, _ := b.key(artifactID, objectThumbnail)
		if err := b.putFile(ctx, key, "image/png", upload.Thumbnail); err != nil {
			return "", services.Wrap(services.ErrExternalTool, "publish", "upload thumbnail", key, err)
		}
	}
	if upload.Annotations != "" {
		key, _ := b.key(artifactID, annotationsObject(upload))
		pr, pw := io.Pipe()
		go func() { pw.CloseWithError(compressFile(pw, upload.Annotations)) }()
		err := b.put(ctx, key, "application/zstd", pr)
		_ = pr.Close()
		if err != nil {
			return "", services.Wrap(services.ErrExternalTool, "publish", "upload annotations", key, err)
		}
	}
	meta, err := json.Marshal(metadataFor(upload))
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	metaKey, _ := b.key(artifactID, objectMetadata)
	if err := b.put(ctx, metaKey, "application/json", bytes.NewReader(meta)); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "publish", "upload metadata", metaKey, err)
	}
	return artifactID, nil
}

// lookupTrackID uses the metadata object's ETag, which changes with every
// replacement upload.
func (b *s3Backend) lookupTrackID(ctx context.Context, artifactID string) (string, error) {
	key, err := b.key(artifactID, objectMetadata)
	if err != nil {
		return "", err
	}
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "caption", "lookup track", key, err)
	}
	etag := strings.Trim(aws.ToString(out.ETag), `"`)
	if etag == "" {
		return "", ErrTrackPending
	}
	return etag, nil
}

func (b *s3Backend) postComment(ctx context.Context, artifactID, text string) error {
	key, err := b.key(artifactID, objectComment)
	if err != nil {
		return err
	}
	if err := b.put(ctx, key, "text/plain; charset=utf-8", strings.NewReader(text+"\n")); err != nil {
		return services.Wrap(services.ErrExternalTool, "comment", "upload", key, err)
	}
	return nil
}

func (b *s3Backend) postCaption(ctx context.Context, artifactID, trackID, src string) error {
	key, err := b.key(artifactID, trackID+"."+objectCaption)
	if err != nil {
		return err
	}
	if err := b.putFile(ctx, key, "application/x-subrip", src); err != nil {
		return services.Wrap(services.ErrExternalTool, "caption", "upload", key, err)
	}
	return nil
}
