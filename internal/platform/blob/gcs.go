package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS stores blobs in a Google Cloud Storage bucket. STORAGE_EMULATOR_HOST
// switches the client to an unauthenticated emulator.
type GCS struct {
	client *storage.Client
	bucket string
}

func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs bucket required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")) != "" {
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, clientOptionsFromEnv()...)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func (s *GCS) Driver() Driver { return DriverGCS }

func (s *GCS) obj(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(key)
}

func (s *GCS) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	w := s.obj(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if opts.ContentType != "" {
		w.ContentType = opts.ContentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return Info{}, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return Info{}, fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return s.Head(ctx, key)
}

func (s *GCS) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	rc, err := s.obj(key).NewReader(ctx)
	if err != nil {
		return Info{}, nil, s.mapErr(key, err)
	}
	return info, rc, nil
}

func (s *GCS) Head(ctx context.Context, key string) (Info, error) {
	attrs, err := s.obj(key).Attrs(ctx)
	if err != nil {
		return Info{}, s.mapErr(key, err)
	}
	return Info{Key: key, Size: attrs.Size, ContentType: attrs.ContentType, LastModified: attrs.Updated}, nil
}

func (s *GCS) Delete(ctx context.Context, key string) (bool, error) {
	if err := s.obj(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *GCS) List(ctx context.Context, prefix string) ([]Info, error) {
	var out []Info
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Info{Key: attrs.Name, Size: attrs.Size, ContentType: attrs.ContentType, LastModified: attrs.Updated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *GCS) mapErr(key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}
