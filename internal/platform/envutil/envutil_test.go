package envutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	t.Setenv("TB_DUR", "90s")
	assert.Equal(t, 90*time.Second, Duration("TB_DUR", time.Second))
	t.Setenv("TB_DUR", "120")
	assert.Equal(t, 2*time.Minute, Duration("TB_DUR", time.Second))
	t.Setenv("TB_DUR", "junk")
	assert.Equal(t, time.Second, Duration("TB_DUR", time.Second))
}

func TestListAndBool(t *testing.T) {
	t.Setenv("TB_LIST", " a, ,b ")
	assert.Equal(t, []string{"a", "b"}, List("TB_LIST", nil))
	t.Setenv("TB_BOOL", "on")
	assert.True(t, Bool("TB_BOOL", false))
	assert.Equal(t, 5, Int("TB_MISSING_INT", 5))
}
