package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GispoCoding/CFSI/internal/controller"
)

type fakeLookup struct {
	runs map[string]controller.RunSummary
}

func (f fakeLookup) Get(id string) (controller.RunSummary, bool) {
	s, ok := f.runs[id]
	return s, ok
}

func TestHealthzReportsOK(t *testing.T) {
	router := NewRouter(fakeLookup{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestGetRunFound(t *testing.T) {
	router := NewRouter(fakeLookup{runs: map[string]controller.RunSummary{
		"abc": {ID: "abc", Action: controller.ActionIndex, Processed: 3},
	}})
	req := httptest.NewRequest(http.MethodGet, "/runs/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body controller.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Processed)
}

func TestGetRunNotFound(t *testing.T) {
	router := NewRouter(fakeLookup{runs: map[string]controller.RunSummary{}})
	req := httptest.NewRequest(http.MethodGet, "/runs/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	router := NewRouter(fakeLookup{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
