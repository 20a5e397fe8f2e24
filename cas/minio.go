package cas

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"pvchain/internal/errs"
)

// MinioClient stores report snapshots in an S3-compatible object store. The
// object key is the hex SHA-256 of the content, which makes the store
// content-addressed: identical bytes always land under the same key.
type MinioClient struct {
	mc     *minio.Client
	bucket string
	logger *log.Logger
}

// MinioOptions configures a MinioClient.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewMinioClient builds a client for the configured endpoint and bucket.
func NewMinioClient(opts MinioOptions, logger *log.Logger) (*MinioClient, error) {
	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindNonRetryable, "cas.init", "build object store client", err)
	}
	logger.Printf("CAS client created, endpoint: %s, bucket: %s", opts.Endpoint, opts.Bucket)
	return &MinioClient{mc: mc, bucket: opts.Bucket, logger: logger}, nil
}

// Put stores data under its content-derived key and returns the reference.
// If an object with the same key already exists the existing reference is
// returned without a second upload.
func (c *MinioClient) Put(ctx context.Context, data []byte, meta Metadata) (string, error) {
	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:])

	// Content addressing makes duplicate uploads harmless, but a Stat first
	// avoids re-sending the payload on anchor retries.
	if _, err := c.mc.StatObject(ctx, c.bucket, ref, minio.StatObjectOptions{}); err == nil {
		return ref, nil
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	userMeta := map[string]string{}
	if meta.BatchID != "" {
		userMeta["batch-id"] = meta.BatchID
	}
	if meta.Fingerprint != "" {
		userMeta["fingerprint"] = meta.Fingerprint
	}

	_, err := c.mc.PutObject(ctx, c.bucket, ref, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: userMeta,
	})
	if err != nil {
		return "", classifyMinioErr("cas.put", err)
	}
	return ref, nil
}

// Get retrieves the bytes stored under ref.
func (c *MinioClient) Get(ctx context.Context, ref string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioErr("cas.get", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, errs.Wrap(errs.KindNotFound, "cas.get", "no object for reference "+ref, err)
		}
		return nil, classifyMinioErr("cas.get", err)
	}
	return data, nil
}

func (c *MinioClient) Close() error { return nil }

// classifyMinioErr maps object-store failures onto the pipeline error
// taxonomy. Quota exhaustion needs an operator; everything else from the
// store is assumed transient.
func classifyMinioErr(op string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "QuotaExceeded", "EntityTooLarge", "AccountProblem":
			return errs.Wrap(errs.KindNonRetryable, op, "storage quota exceeded", err)
		case "NoSuchKey":
			return errs.Wrap(errs.KindNotFound, op, "object not found", err)
		}
	}
	return errs.Wrap(errs.KindRetryable, op, "storage unavailable", err)
}

var _ Client = (*MinioClient)(nil)
