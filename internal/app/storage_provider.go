package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/testbridge-backend/internal/platform/blob"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidDriver StorageProviderBootstrapErrorCode = "invalid_driver"
	StorageProviderBootstrapErrorMissingBucket StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorConnectFailed StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code   StorageProviderBootstrapErrorCode
	Driver string
	Cause  error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "blob storage bootstrap failed"
	}
	return fmt.Sprintf("blob storage bootstrap failed (code=%s driver=%q): %v", e.Code, e.Driver, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Constructors are variables so tests can stub the cloud clients.
var (
	newS3Store  = func(ctx context.Context, cfg blob.S3Config) (blob.Store, error) { return blob.NewS3(ctx, cfg) }
	newGCSStore = func(ctx context.Context, bucket string) (blob.Store, error) { return blob.NewGCS(ctx, bucket) }
)

func resolveBlobStore(ctx context.Context, log *logger.Logger, cfg StorageConfig) (blob.Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(blob.DriverFilesystem)
	}
	log.Info("Selecting blob storage provider", "driver", driver)

	var (
		store blob.Store
		err   error
	)
	switch blob.Driver(driver) {
	case blob.DriverFilesystem:
		store, err = blob.NewFS(cfg.MediaRoot)
	case blob.DriverMemory:
		store = blob.NewMemory()
	case blob.DriverS3:
		if cfg.S3Bucket == "" {
			return nil, bootstrapFailure(log, driver, StorageProviderBootstrapErrorMissingBucket, errors.New("S3_BUCKET is empty"))
		}
		store, err = newS3Store(ctx, blob.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3Endpoint != "",
		})
	case blob.DriverGCS:
		if cfg.GCSBucket == "" {
			return nil, bootstrapFailure(log, driver, StorageProviderBootstrapErrorMissingBucket, errors.New("GCS_BUCKET is empty"))
		}
		store, err = newGCSStore(ctx, cfg.GCSBucket)
	default:
		return nil, bootstrapFailure(log, driver, StorageProviderBootstrapErrorInvalidDriver, fmt.Errorf("unsupported blob driver %q", driver))
	}
	if err != nil {
		return nil, bootstrapFailure(log, driver, StorageProviderBootstrapErrorConnectFailed, err)
	}
	return store, nil
}

func bootstrapFailure(log *logger.Logger, driver string, code StorageProviderBootstrapErrorCode, cause error) error {
	err := &StorageProviderBootstrapError{Code: code, Driver: driver, Cause: cause}
	log.Error("Blob storage provider bootstrap failed", "driver", driver, "error_code", code, "error", cause)
	return err
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return StorageProviderBootstrapErrorConnectFailed
}
