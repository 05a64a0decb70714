// Package objstore is a thin S3 client used to publish tables and mirror them
// back into the dashboard's data directory.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gktracker/lib/configutil"
	"gktracker/lib/telemetry"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gktracker/lib/objstore")

const (
	report_list_failed   = "client.list"
	report_upload_failed = "client.upload"
	report_delete_failed = "client.delete"
)

type Config struct {
	Endpoint string `json:"endpoint" env:"S3_ENDPOINT"`
	Region   string `json:"region" env:"S3_REGION"`
	// UseSSL defaults to true when unset.
	UseSSL          *bool  `json:"use_ssl" env:"S3_USE_SSL"`
	AccessKeyId     string `json:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
}

const DefaultEndpoint = "s3.amazonaws.com"

func (c Config) Validate() error {
	if (c.AccessKeyId == "") != (c.SecretAccessKey == "") {
		return configutil.Invalid("object store access key id and secret access key must be set together")
	}
	return nil
}

func (c Config) credentials() *credentials.Credentials {
	if c.AccessKeyId != "" {
		return credentials.NewStaticV4(c.AccessKeyId, c.SecretAccessKey, "")
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{},
	})
}

// Object is one entry of a remote listing.
type Object struct {
	Key          string
	LastModified time.Time
	Size         int64
}

type Client struct {
	minio *minio.Client
	tel   telemetry.API
}

func NewClient(tel telemetry.API, config Config) (*Client, error) {
	err := config.Validate()
	if err != nil {
		return nil, err
	}
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	secure := true
	if config.UseSSL != nil {
		secure = *config.UseSSL
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  config.credentials(),
		Secure: secure,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Client{
		minio: client,
		tel:   telemetry.NewScopedAPI("objstore", tel),
	}, nil
}

// NormalizePrefix strips leading and trailing slashes and re-appends a single
// trailing slash, an empty prefix stays empty.
func NormalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// List returns every object under prefix, following pagination.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	ctx, span := tracer.Start(ctx, "client:List")
	defer span.End()
	span.SetAttributes(
		attribute.String("bucket", bucket),
		attribute.String("prefix", prefix),
	)

	var objects []Object
	for info := range c.minio.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			c.tel.ReportBroken(report_list_failed, bucket, prefix, info.Err)
			span.RecordError(info.Err)
			span.SetStatus(codes.Error, "failed to list objects")
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, info.Err)
		}
		objects = append(objects, Object{
			Key:          info.Key,
			LastModified: info.LastModified.UTC(),
			Size:         info.Size,
		})
	}
	span.SetAttributes(attribute.Int("objects", len(objects)))
	return objects, nil
}

// Download writes an object to localPath, creating parent directories.
func (c *Client) Download(ctx context.Context, bucket, key, localPath string) error {
	ctx, span := tracer.Start(ctx, "client:Download")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	err := os.MkdirAll(filepath.Dir(localPath), 0o755)
	if err != nil {
		return fmt.Errorf("create parent for %s: %w", localPath, err)
	}
	err = c.minio.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to download object")
		return fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

type MirrorResult struct {
	Uploaded []string
	Deleted  []string
}

// Mirror uploads every file under localDir to bucket/prefix keeping relative
// paths. With deleteExtra, remote keys under prefix that have no local
// counterpart are removed afterwards.
func (c *Client) Mirror(ctx context.Context, localDir, bucket, prefix string, deleteExtra bool) (MirrorResult, error) {
	ctx, span := tracer.Start(ctx, "client:Mirror")
	defer span.End()
	prefix = NormalizePrefix(prefix)
	span.SetAttributes(
		attribute.String("bucket", bucket),
		attribute.String("prefix", prefix),
		attribute.Bool("delete", deleteExtra),
	)

	var result MirrorResult
	local := map[string]struct{}{}
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		key := prefix + filepath.ToSlash(rel)
		local[key] = struct{}{}

		opts := minio.PutObjectOptions{ContentType: mime.TypeByExtension(path.Ext(key))}
		_, err = c.minio.FPutObject(ctx, bucket, key, p, opts)
		if err != nil {
			c.tel.ReportBroken(report_upload_failed, key, err)
			return fmt.Errorf("upload %s to s3://%s/%s: %w", p, bucket, key, err)
		}
		result.Uploaded = append(result.Uploaded, key)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload directory")
		return result, err
	}
	if !deleteExtra {
		return result, nil
	}

	remote, err := c.List(ctx, bucket, prefix)
	if err != nil {
		return result, err
	}
	var errs []error
	for _, obj := range remote {
		if _, ok := local[obj.Key]; ok {
			continue
		}
		err = c.minio.RemoveObject(ctx, bucket, obj.Key, minio.RemoveObjectOptions{})
		if err != nil {
			c.tel.ReportBroken(report_delete_failed, obj.Key, err)
			errs = append(errs, fmt.Errorf("delete s3://%s/%s: %w", bucket, obj.Key, err))
			continue
		}
		result.Deleted = append(result.Deleted, obj.Key)
	}
	if len(errs) > 0 {
		err = errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete extra objects")
		return result, err
	}
	return result, nil
}
