package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

func newContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestBuilder_Data(t *testing.T) {
	c, rec := newContext()
	require.NoError(t, New(c).WithStatus(http.StatusCreated).WithData(map[string]string{"a": "b"}).Build())

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"a": "b"}, body["data"])
}

func TestBuilder_Fields(t *testing.T) {
	c, rec := newContext()
	require.NoError(t, New(c).WithFields(map[string]any{"orderId": "X1"}).Build())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"success": true, "orderId": "X1"}, decode(t, rec))
}

func TestBuilder_Error(t *testing.T) {
	c, rec := newContext()
	err := errorbank.BadGateway("archive upload failed", errorbank.WithDetail("upstream_status", 503))
	require.NoError(t, New(c).WithError(err).Build())

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "bad_gateway", errBody["kind"])
	assert.Equal(t, "archive upload failed", errBody["message"])
	assert.Equal(t, map[string]any{"upstream_status": float64(503)}, errBody["details"])
}

func TestBuilder_UnknownErrorIsInternal(t *testing.T) {
	c, rec := newContext()
	require.NoError(t, New(c).WithError(errors.New("db down")).Build())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "internal error", errBody["message"])
}
