package apierr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestStatusMapping(t *testing.T) {
	cases := map[Code]int{
		CodeValidation: http.StatusBadRequest,
		CodeNotFound:   http.StatusNotFound,
		CodeAuth:       http.StatusUnauthorized,
		CodePermission: http.StatusForbidden,
		CodeConflict:   http.StatusConflict,
		CodeInternal:   http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, New(code, "", "", nil).Status(), code)
	}
}

func TestCodeOfUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("case.get", "case", 3))
	assert.True(t, IsCode(err, CodeNotFound))
	assert.Equal(t, Code(""), CodeOf(fmt.Errorf("plain")))
}

func TestMapDB(t *testing.T) {
	assert.True(t, IsCode(MapDB("op", gorm.ErrRecordNotFound), CodeNotFound))
	assert.True(t, IsCode(MapDB("op", &pgconn.PgError{Code: "23505", Detail: "dup"}), CodeConflict))
	assert.True(t, IsCode(MapDB("op", fmt.Errorf("UNIQUE constraint failed: label.name")), CodeConflict))
	plain := fmt.Errorf("boom")
	assert.Equal(t, plain, MapDB("op", plain))
	assert.Nil(t, MapDB("op", nil))
}

func TestFieldValidationMessage(t *testing.T) {
	err := FieldValidation("label.create", "name", "already exists")
	assert.Equal(t, "label.create: name: already exists", err.Error())
	err.WithField("color", "bad")
	assert.Len(t, err.Fields, 2)
}
