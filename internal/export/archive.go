// Package export archives shopping-list export data to disk and, optionally,
// to S3-compatible storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/cartsync/internal/model"
)

const encryptedExt = ".enc"

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source produces the export payload for a list.
type Source interface {
	ExportData(ctx context.Context, listID model.ID, body json.RawMessage) (json.RawMessage, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

type Config struct {
	Dir string
	S3  S3Config
}

// Result describes a written archive.
type Result struct {
	Path      string `json:"path"`
	Key       string `json:"key,omitempty"`
	Size      int64  `json:"size"`
	Encrypted bool   `json:"encrypted"`
}

type Archiver struct {
	cfg    Config
	source Source
	client s3Client
	logger *slog.Logger
	now    func() time.Time
}

func NewArchiver(cfg Config, source Source, logger *slog.Logger) *Archiver {
	a := &Archiver{
		cfg:    cfg,
		source: source,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		a.client = newS3Client(cfg.S3)
	}
	return a
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Archive fetches the export payload for listID and writes it to the export
// directory, encrypted when passphrase is set. With S3 configured the archive
// is uploaded too.
func (a *Archiver) Archive(ctx context.Context, listID model.ID, passphrase string) (Result, error) {
	data, err := a.source.ExportData(ctx, listID, nil)
	if err != nil {
		return Result{}, fmt.Errorf("fetch export data: %w", err)
	}

	name := fmt.Sprintf("list-%s-%s.json", listID, a.now().Format("2006-01-02T150405Z"))
	out := []byte(data)
	encrypted := passphrase != ""
	if encrypted {
		if out, err = Encrypt(out, passphrase); err != nil {
			return Result{}, fmt.Errorf("encrypt archive: %w", err)
		}
		name += encryptedExt
	}

	if err := os.MkdirAll(a.cfg.Dir, 0o700); err != nil {
		return Result{}, fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(a.cfg.Dir, name)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return Result{}, fmt.Errorf("write archive: %w", err)
	}

	res := Result{Path: path, Size: int64(len(out)), Encrypted: encrypted}
	if a.client != nil {
		key := a.cfg.S3.Prefix + name
		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(a.cfg.S3.Bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(out),
			ContentLength: aws.Int64(int64(len(out))),
		})
		if err != nil {
			return res, fmt.Errorf("upload to s3: %w", err)
		}
		res.Key = key
	}

	a.logger.Info("list archived", "list_id", listID, "path", path, "key", res.Key, "encrypted", encrypted)
	return res, nil
}

// Retrieve downloads an archive from S3 and decrypts it when its name ends in
// .enc.
func (a *Archiver) Retrieve(ctx context.Context, key, passphrase string) ([]byte, error) {
	if a.client == nil {
		return nil, fmt.Errorf("s3 not configured")
	}
	obj, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3: %w", err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if !strings.HasSuffix(key, encryptedExt) {
		return data, nil
	}
	return Decrypt(data, passphrase)
}
