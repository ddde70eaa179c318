package errs

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadRequest, New(InvalidArgument, errors.New("x")).HTTPStatus())
	assert.Equal(t, http.StatusNotFound, Newf(NotFound, "missing %s", "y").HTTPStatus())
	assert.Equal(t, http.StatusConflict, HTTPStatus(AlreadyExists))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Internal))
}

func TestError_Encode(t *testing.T) {
	t.Parallel()

	data, ct, err := Newf(NotFound, "configuration %s not found", "twilio").Encode()
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)
	assert.JSONEq(t, `{"code":"not_found","message":"configuration twilio not found"}`, string(data))

	var decoded Error
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Code.Equal(NotFound))
}

func TestCheck(t *testing.T) {
	t.Parallel()

	type req struct {
		Identifier string `json:"identifier" validate:"required"`
		Port       int    `json:"port" validate:"min=1,max=65535"`
	}

	require.NoError(t, Check(req{Identifier: "x", Port: 25}))

	err := Check(req{Port: 70000})
	require.Error(t, err)
	require.True(t, IsFieldErrors(err))

	fields := GetFieldErrors(err).Fields()
	assert.Contains(t, fields, "identifier")
	assert.Contains(t, fields, "port")

	appErr := GetFieldErrors(err).ToError()
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
}
