package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"user_id", 7,
		"token", "abc",
		"Authorization", "Token abc",
		"payload", map[string]interface{}{"password": "pw", "name": "n"},
		"dangling",
	})

	assert.Equal(t, 7, out[1])
	assert.Equal(t, "[REDACTED]", out[3])
	assert.Equal(t, "[REDACTED]", out[5])
	payload := out[7].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", payload["password"])
	assert.Equal(t, "n", payload["name"])
	assert.Equal(t, "dangling", out[8])
}

func TestLooksLikeJWT(t *testing.T) {
	assert.True(t, looksLikeJWT("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NTYifQ.sig"))
	assert.False(t, looksLikeJWT("plain text"))
	assert.False(t, looksLikeJWT("a.b.c"))
}
