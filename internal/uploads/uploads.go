// Package uploads stores product images and avatars.
package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"sinilikhain/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// PublicPrefix is the URL path local uploads are served from.
const PublicPrefix = "/uploads"

// Store saves an uploaded file and returns the path or URL clients use to fetch it.
type Store interface {
	Save(ctx context.Context, filename, contentType string, body io.Reader) (string, error)
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// objectName validates the content type and builds a collision-free name.
// The client's extension is ignored: static serving derives the response
// type from the extension, so it must come from the validated content type.
func objectName(contentType string) (string, error) {
	ext, ok := allowedTypes[strings.ToLower(contentType)]
	if !ok {
		return "", models.Invalid("unsupported image type %q", contentType)
	}
	return uuid.New().String() + ext, nil
}

// LocalStore writes files to a directory served at PublicPrefix.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the directory files are written to.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Save(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	name, err := objectName(contentType)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(s.dir, name)
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create upload: %w", err)
	}

	_, err = io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return path.Join(PublicPrefix, name), nil
}

// S3Store uploads files to a bucket with public-read ACL.
type S3Store struct {
	uploader      *manager.Uploader
	bucket        string
	publicBaseURL string
}

// NewS3Store loads the default AWS configuration (env, shared config, IMDS).
func NewS3Store(ctx context.Context, bucket, publicBaseURL string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return &S3Store{
		uploader:      manager.NewUploader(s3.NewFromConfig(cfg)),
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (s *S3Store) Save(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	name, err := objectName(contentType)
	if err != nil {
		return "", err
	}
	key := "products/" + name

	result, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ACL:         "public-read",
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	return result.Location, nil
}
