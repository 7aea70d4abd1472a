// Package s3 implements objectstore.ObjectStoreClient against AWS S3:
// a connection-pooled client with an optional CargoShip-accelerated
// upload path and byte-range reads, with every call wrapped by the
// internal/circuit breaker and pkg/retry backoff.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssdkconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/posixfs/posixfs/internal/circuit"
	"github.com/posixfs/posixfs/internal/objectstore"
	pkgerrors "github.com/posixfs/posixfs/pkg/errors"
	"github.com/posixfs/posixfs/pkg/retry"
)

// Config configures a Client.
type Config struct {
	Region         string
	Endpoint       string
	ForcePathStyle bool
	MaxRetries     int

	// EnableCargoShipOptimization turns on the accelerated multipart
	// upload path for Put.
	EnableCargoShipOptimization bool
	MultipartThreshold          int64
	MultipartChunkSize          int64

	CircuitBreaker circuit.Options
	Retry          retry.Policy
}

// Client is an S3-backed objectstore.ObjectStoreClient.
type Client struct {
	client      *s3.Client
	bucket      string
	transporter *cargoships3.Transporter
	logger      *slog.Logger

	breaker *circuit.Breaker
	retry   retry.Policy
}

var _ objectstore.ObjectStoreClient = (*Client)(nil)

// New builds a Client against bucket using cfg.
func New(ctx context.Context, bucket string, cfg Config) (*Client, error) {
	if bucket == "" {
		return nil, fmt.Errorf("objectstore/s3: bucket name cannot be empty")
	}
	if cfg.MultipartThreshold == 0 {
		cfg.MultipartThreshold = 32 * 1024 * 1024
	}
	if cfg.MultipartChunkSize == 0 {
		cfg.MultipartChunkSize = 16 * 1024 * 1024
	}

	awsCfg, err := awssdkconfig.LoadDefaultConfig(ctx,
		awssdkconfig.WithRegion(cfg.Region),
		awssdkconfig.WithRetryMaxAttempts(cfg.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore/s3: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	logger := slog.Default().With("component", "objectstore-s3", "bucket", bucket)

	var transporter *cargoships3.Transporter
	if cfg.EnableCargoShipOptimization {
		cargoCfg := awsconfig.S3Config{
			Bucket:             bucket,
			StorageClass:       awsconfig.StorageClassStandard,
			MultipartThreshold: cfg.MultipartThreshold,
			MultipartChunkSize: cfg.MultipartChunkSize,
		}
		transporter = cargoships3.NewTransporter(client, cargoCfg)
	}

	return &Client{
		client:      client,
		bucket:      bucket,
		transporter: transporter,
		logger:      logger,
		breaker:     circuit.New("objectstore-s3-"+bucket, cfg.CircuitBreaker),
		retry:       cfg.Retry,
	}, nil
}

// Get implements objectstore.ObjectStoreClient.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	return c.GetRange(ctx, key, 0, 0)
}

// GetRange implements objectstore.ObjectStoreClient.
func (c *Client) GetRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	var out []byte
	err := c.guarded(ctx, func(ctx context.Context) error {
		var rangeHeader *string
		if offset > 0 || length > 0 {
			if length > 0 {
				rangeHeader = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
			} else {
				rangeHeader = aws.String(fmt.Sprintf("bytes=%d-", offset))
			}
		}

		result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
			Range:  rangeHeader,
		})
		if err != nil {
			return translateError(err, "Get", key)
		}
		defer result.Body.Close()

		data, err := io.ReadAll(result.Body)
		if err != nil {
			return pkgerrors.NewError(pkgerrors.ErrCodeNetworkError, "read object body").WithCause(err)
		}
		out = data
		return nil
	})
	return out, err
}

// Put implements objectstore.ObjectStoreClient. metadata, when non-empty,
// is attached as the object's custom metadata (e.g. the tier manager's
// {pageId, blobId, pageIndex} triple written ahead of an eviction).
func (c *Client) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	return c.guarded(ctx, func(ctx context.Context) error {
		if c.transporter != nil {
			archive := cargoships3.Archive{
				Key:          key,
				Reader:       bytes.NewReader(data),
				Size:         int64(len(data)),
				StorageClass: awsconfig.StorageClassStandard,
				Metadata:     metadata,
			}
			if _, err := c.transporter.Upload(ctx, archive); err == nil {
				return nil
			} else {
				c.logger.Warn("cargoship upload failed, falling back to standard put", "key", key, "error", err)
			}
		}

		_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(c.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			Metadata:      metadata,
		})
		if err != nil {
			return translateError(err, "Put", key)
		}
		return nil
	})
}

// Delete implements objectstore.ObjectStoreClient.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.guarded(ctx, func(ctx context.Context) error {
		_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return translateError(err, "Delete", key)
		}
		return nil
	})
}

// Head implements objectstore.ObjectStoreClient.
func (c *Client) Head(ctx context.Context, key string) (objectstore.ObjectInfo, error) {
	var info objectstore.ObjectInfo
	err := c.guarded(ctx, func(ctx context.Context) error {
		result, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return translateError(err, "Head", key)
		}
		info = objectstore.ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(result.ContentLength),
			LastModified: aws.ToTime(result.LastModified),
			ETag:         aws.ToString(result.ETag),
			Metadata:     result.Metadata,
		}
		return nil
	})
	return info, err
}

// Exists implements objectstore.ObjectStoreClient.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Head(ctx, key)
	if err == nil {
		return true, nil
	}
	var nf *notFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, err
}

// List implements objectstore.ObjectStoreClient.
func (c *Client) List(ctx context.Context, prefix string, limit int) ([]objectstore.ObjectInfo, error) {
	var out []objectstore.ObjectInfo
	err := c.guarded(ctx, func(ctx context.Context) error {
		var maxKeys *int32
		if limit > 0 && limit <= 0x7FFFFFFF {
			maxKeys = aws.Int32(int32(limit))
		}

		result, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(c.bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: maxKeys,
		})
		if err != nil {
			return translateError(err, "List", prefix)
		}

		objs := make([]objectstore.ObjectInfo, 0, len(result.Contents))
		for _, o := range result.Contents {
			objs = append(objs, objectstore.ObjectInfo{
				Key:          aws.ToString(o.Key),
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
				ETag:         aws.ToString(o.ETag),
			})
		}
		sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
		out = objs
		return nil
	})
	return out, err
}

// guarded runs fn behind the circuit breaker, with retry backoff on
// transient failures classified by translateError.
func (c *Client) guarded(ctx context.Context, fn func(context.Context) error) error {
	return c.breaker.Do(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.retry, fn)
	})
}

type notFoundError struct{ key string }

func (e *notFoundError) Error() string { return fmt.Sprintf("object not found: %s", e.key) }

// translateError classifies an AWS SDK error into either a not-found
// sentinel or a retryable pkg/errors.FSError.
func translateError(err error, operation, key string) error {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return &notFoundError{key: key}
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return &notFoundError{key: key}
	}

	return pkgerrors.NewError(pkgerrors.ErrCodeConnectionFailed, fmt.Sprintf("%s failed for %s", operation, key)).
		WithCause(err).
		WithOperation(operation)
}
