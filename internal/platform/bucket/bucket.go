package bucket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	pkgerrors "github.com/yungbote/vidscribe-backend/internal/pkg/errors"
)

// ObjectMeta describes one listed object.
type ObjectMeta struct {
	Key     string
	Size    int64
	Updated time.Time
}

// Service is the typed adapter over the artifact bucket. All artifact bytes
// in the system flow through this interface; writers always use canonical keys.
type Service interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PutFile(ctx context.Context, key string, localPath string, contentType string) error
	Download(ctx context.Context, key string, localPath string) error
	List(ctx context.Context, prefix string) ([]ObjectMeta, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetJSON(ctx context.Context, key string, out any) error
	PutJSON(ctx context.Context, key string, payload any) error
	PublicURL(key string) string
	Bucket() string
}

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Secure        bool
	Bucket        string
	PublicBaseURL string
}

func LoadConfig() Config {
	return Config{
		Endpoint:      envutil.String("MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:     envutil.String("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey:     envutil.String("MINIO_SECRET_KEY", "minioadmin"),
		Secure:        envutil.Bool("MINIO_SECURE", false),
		Bucket:        envutil.String("MINIO_BUCKET", "cres"),
		PublicBaseURL: strings.TrimRight(envutil.String("MINIO_PUBLIC_BASE_URL", ""), "/"),
	}
}

type service struct {
	log    *logger.Logger
	client *s3.Client
	cfg    Config

	maxAttempts int
	baseBackoff time.Duration
}

func New(log *logger.Logger) (Service, error) {
	return NewWithConfig(log, LoadConfig())
}

func NewWithConfig(log *logger.Logger, cfg Config) (Service, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("bucket: missing MINIO_ENDPOINT")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket: missing MINIO_BUCKET")
	}

	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	endpointURL := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(envutil.String("MINIO_REGION", "us-east-1")),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("bucket: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpointURL)
		o.UsePathStyle = true
	})

	serviceLog := log.With("service", "Bucket")
	serviceLog.Info("Object storage initialized", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket, "secure", cfg.Secure)

	return &service{
		log:         serviceLog,
		client:      client,
		cfg:         cfg,
		maxAttempts: 3,
		baseBackoff: 250 * time.Millisecond,
	}, nil
}

func (s *service) Bucket() string { return s.cfg.Bucket }

// withRetry runs op up to maxAttempts times with exponential backoff.
// NotFound and invalid-input errors are returned immediately.
func (s *service) withRetry(ctx context.Context, what string, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, pkgerrors.ErrNotFound) || errors.Is(lastErr, pkgerrors.ErrInvalidArgument) {
			return lastErr
		}
		if attempt == s.maxAttempts {
			break
		}
		sleep := s.baseBackoff << (attempt - 1)
		s.log.Warn("Bucket operation retrying", "op", what, "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return fmt.Errorf("bucket: %s failed after %d attempts: %w", what, s.maxAttempts, lastErr)
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	return errors.As(err, &nf)
}

func (s *service) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.withRetry(ctx, "get", func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNoSuchKey(err) {
				return fmt.Errorf("bucket: get %s: %w", key, pkgerrors.ErrNotFound)
			}
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *service) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	return s.withRetry(ctx, "put", func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		return err
	})
}

func (s *service) PutFile(ctx context.Context, key string, localPath string, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	return s.withRetry(ctx, "put_file", func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("bucket: open %s: %w", localPath, err)
		}
		defer f.Close()
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.cfg.Bucket),
			Key:         aws.String(key),
			Body:        f,
			ContentType: aws.String(contentType),
		})
		return err
	})
}

func (s *service) Download(ctx context.Context, key string, localPath string) error {
	return s.withRetry(ctx, "download", func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNoSuchKey(err) {
				return fmt.Errorf("bucket: download %s: %w", key, pkgerrors.ErrNotFound)
			}
			return err
		}
		defer out.Body.Close()

		if err := os.MkdirAll(path.Dir(localPath), 0o755); err != nil {
			return err
		}
		f, err := os.Create(localPath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, out.Body); err != nil {
			f.Close()
			os.Remove(localPath)
			return err
		}
		return f.Close()
	})
}

func (s *service) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	var metas []ObjectMeta
	err := s.withRetry(ctx, "list", func() error {
		metas = metas[:0]
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.cfg.Bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, obj := range page.Contents {
				meta := ObjectMeta{Key: aws.ToString(obj.Key)}
				if obj.Size != nil {
					meta.Size = *obj.Size
				}
				if obj.LastModified != nil {
					meta.Updated = *obj.LastModified
				}
				metas = append(metas, meta)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return metas, nil
}

func (s *service) Copy(ctx context.Context, srcKey, dstKey string) error {
	return s.withRetry(ctx, "copy", func() error {
		_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.cfg.Bucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(s.cfg.Bucket + "/" + srcKey),
		})
		if err != nil && isNoSuchKey(err) {
			return fmt.Errorf("bucket: copy %s: %w", srcKey, pkgerrors.ErrNotFound)
		}
		return err
	})
}

func (s *service) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("bucket: head %s: %w", key, err)
	}
	return true, nil
}

func (s *service) GetJSON(ctx context.Context, key string, out any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("bucket: decode %s: %w", key, pkgerrors.ErrInvalidArgument)
	}
	return nil
}

// PutJSON writes pretty-printed UTF-8 JSON. CJK text stays unescaped so the
// stored artifacts remain readable.
func (s *service) PutJSON(ctx context.Context, key string, payload any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("bucket: encode %s: %w", key, err)
	}
	return s.Put(ctx, key, buf.Bytes(), "application/json")
}

func (s *service) PublicURL(key string) string {
	encoded := (&url.URL{Path: key}).EscapedPath()
	encoded = strings.TrimPrefix(encoded, "/")
	if s.cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.cfg.PublicBaseURL, s.cfg.Bucket, encoded)
	}
	scheme := "http"
	if s.cfg.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.cfg.Bucket, encoded)
}

// ContentTypeForKey infers a content type from the key extension.
func ContentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".html":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
