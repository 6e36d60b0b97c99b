package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/domain"
)

type namedHandler string

func (h namedHandler) Type() string { return string(h) }
func (namedHandler) Run(context.Context, *domain.Task) error { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(namedHandler("email.send")))
	assert.Error(t, r.Register(namedHandler("email.send")))
	assert.Error(t, r.Register(namedHandler("")))
	assert.Error(t, r.Register(nil))

	h, ok := r.Get("email.send")
	require.True(t, ok)
	assert.Equal(t, "email.send", h.Type())
	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad payload")
	err := fmt.Errorf("decode: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.NoError(t, Permanent(nil))
}
