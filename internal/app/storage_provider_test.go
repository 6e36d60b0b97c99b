package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/platform/blob"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

func TestResolveBlobStoreDrivers(t *testing.T) {
	log := logger.NewNop()
	ctx := context.Background()

	store, err := resolveBlobStore(ctx, log, StorageConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.Equal(t, blob.DriverMemory, store.Driver())

	store, err = resolveBlobStore(ctx, log, StorageConfig{MediaRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, blob.DriverFilesystem, store.Driver())
}

func TestResolveBlobStoreInvalidDriver(t *testing.T) {
	_, err := resolveBlobStore(context.Background(), logger.NewNop(), StorageConfig{Driver: "ftp"})
	require.Error(t, err)
	assert.Equal(t, StorageProviderBootstrapErrorInvalidDriver, storageProviderBootstrapErrorCode(err))
}

func TestResolveBlobStoreMissingBucket(t *testing.T) {
	for _, driver := range []string{"s3", "gcs"} {
		_, err := resolveBlobStore(context.Background(), logger.NewNop(), StorageConfig{Driver: driver})
		require.Error(t, err, driver)
		assert.Equal(t, StorageProviderBootstrapErrorMissingBucket, storageProviderBootstrapErrorCode(err), driver)
	}
}

func TestResolveBlobStoreConnectFailed(t *testing.T) {
	orig := newGCSStore
	t.Cleanup(func() { newGCSStore = orig })
	cause := errors.New("dial gcs: refused")
	newGCSStore = func(context.Context, string) (blob.Store, error) { return nil, cause }

	_, err := resolveBlobStore(context.Background(), logger.NewNop(), StorageConfig{Driver: "gcs", GCSBucket: "attachments"})
	require.Error(t, err)
	assert.Equal(t, StorageProviderBootstrapErrorConnectFailed, storageProviderBootstrapErrorCode(err))
	assert.ErrorIs(t, err, cause)
}

func TestResolveBlobStoreS3Config(t *testing.T) {
	orig := newS3Store
	t.Cleanup(func() { newS3Store = orig })
	var got blob.S3Config
	newS3Store = func(_ context.Context, cfg blob.S3Config) (blob.Store, error) {
		got = cfg
		return blob.NewMemory(), nil
	}

	_, err := resolveBlobStore(context.Background(), logger.NewNop(), StorageConfig{
		Driver: "s3", S3Bucket: "media", S3Region: "eu-west-1", S3Endpoint: "http://minio:9000",
	})
	require.NoError(t, err)
	assert.Equal(t, blob.S3Config{Region: "eu-west-1", Bucket: "media", Endpoint: "http://minio:9000", PathStyle: true}, got)
}
