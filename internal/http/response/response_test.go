package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
)

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondError(c, err)
	return rec, c
}

func TestRespondErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apierr.Validation("op", "bad"), http.StatusBadRequest},
		{apierr.Auth("op", "expired"), http.StatusUnauthorized},
		{apierr.Permission("op", "no"), http.StatusForbidden},
		{apierr.NotFound("op", "case", 4), http.StatusNotFound},
		{apierr.Conflict("op", "dup"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec, _ := respond(t, tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestRespondErrorFieldBody(t *testing.T) {
	rec, _ := respond(t, apierr.FieldValidation("case.create", "name", "This field is required."))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string][]string{"name": {"This field is required."}}, body)
}

func TestRespondErrorMessageBody(t *testing.T) {
	rec, _ := respond(t, apierr.Validation("plan.update", "Test case is in an archived test."))
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"Test case is in an archived test."}, body.Errors)
}

func TestRespondErrorHidesInternal(t *testing.T) {
	rec, c := respond(t, errors.New("dial tcp: connection refused"))
	assert.NotContains(t, rec.Body.String(), "connection refused")
	require.Len(t, c.Errors, 1)
	assert.Contains(t, c.Errors.String(), "connection refused")
}
