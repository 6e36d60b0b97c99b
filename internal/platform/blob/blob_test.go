package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
	}
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			info, err := s.Put(ctx, "attachments/ab/abc.png", strings.NewReader("hello"), PutOptions{ContentType: "image/png"})
			require.NoError(t, err)
			assert.EqualValues(t, 5, info.Size)

			_, err = s.Put(ctx, "attachments/ab/abc.png", strings.NewReader("again"), PutOptions{})
			assert.ErrorIs(t, err, ErrExists)

			_, rc, err := s.Get(ctx, "attachments/ab/abc.png")
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "hello", string(body))

			_, err = s.Put(ctx, "attachments/ab/abc@32x32.png", strings.NewReader("thumb"), PutOptions{})
			require.NoError(t, err)
			list, err := s.List(ctx, "attachments/ab/abc")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "attachments/ab/abc.png", list[0].Key)

			ok, err := s.Delete(ctx, "attachments/ab/abc.png")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.Delete(ctx, "attachments/ab/abc.png")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = s.Head(ctx, "attachments/ab/abc.png")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSanitizeKey(t *testing.T) {
	for _, bad := range []string{"", "/etc/passwd", "../x", "a/../../x"} {
		_, err := sanitizeKey(bad)
		assert.Error(t, err, bad)
	}
	k, err := sanitizeKey("a//b/./c.txt")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c.txt", k)
}
