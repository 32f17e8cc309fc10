// ABOUTME: Image upload relay streaming multipart files to an S3-compatible bucket.
// ABOUTME: Accepts a single image up to 4MB and returns its public URL.

package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxUploadSize caps a single uploaded file at 4MB.
const MaxUploadSize = 4 << 20

// objectStore is the slice of the S3 client the relay uses.
type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// Config holds configuration for creating a Relay.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
	Logger        *slog.Logger
}

// Relay accepts multipart image uploads and stores them in a bucket.
type Relay struct {
	store         objectStore
	bucket        string
	publicBaseURL string
	logger        *slog.Logger
}

// NewRelay creates a relay backed by an S3-compatible endpoint.
func NewRelay(cfg Config) (*Relay, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("storage endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	publicBaseURL := cfg.PublicBaseURL
	if publicBaseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBaseURL = fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		store:         client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger.With("component", "upload-relay"),
	}, nil
}

// EnsureBucket creates the configured bucket if it does not exist.
func (u *Relay) EnsureBucket(ctx context.Context) error {
	exists, err := u.store.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := u.store.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket: %w", err)
	}
	u.logger.Info("bucket created", "bucket", u.bucket)
	return nil
}

// Handler returns the HTTP handler for POST /api/uploads.
func (u *Relay) Handler() http.Handler {
	return http.HandlerFunc(u.handleUpload)
}

func (u *Relay) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		u.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Some slack beyond the file cap for multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+(64<<10))

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			u.sendError(w, http.StatusRequestEntityTooLarge, "file exceeds 4MB limit")
			return
		}
		u.sendError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if header.Size > MaxUploadSize {
		u.sendError(w, http.StatusRequestEntityTooLarge, "file exceeds 4MB limit")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		u.sendError(w, http.StatusUnsupportedMediaType, "only image uploads are accepted")
		return
	}

	objectName := uuid.New().String() + strings.ToLower(path.Ext(header.Filename))

	info, err := u.store.PutObject(r.Context(), u.bucket, objectName, file, header.Size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		u.logger.Error("storing upload",
			"object", objectName,
			"error", err)
		u.sendError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	url := fmt.Sprintf("%s/%s/%s", u.publicBaseURL, u.bucket, objectName)
	u.logger.Info("upload stored",
		"object", objectName,
		"size", info.Size,
		"content_type", contentType)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"url":  url,
		"key":  objectName,
		"size": header.Size,
	})
}

func (u *Relay) sendError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
