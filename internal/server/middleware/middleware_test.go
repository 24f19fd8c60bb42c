package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
)

func newChain(buf *bytes.Buffer, h http.Handler) http.Handler {
	logger := slog.New(slog.NewTextHandler(buf, nil))
	return Chain(logger, dherrors.NewHTTPErrorAdapter(logger))(h)
}

func TestChainRecoversPanics(t *testing.T) {
	var logs bytes.Buffer
	h := newChain(&logs, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/explode", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body dherrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Error)
	assert.Contains(t, logs.String(), "HTTP handler panic")
}

func TestChainLogsStatus(t *testing.T) {
	var logs bytes.Buffer
	h := newChain(&logs, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequestWithContext(t.Context(), http.MethodPost, "/brew", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, logs.String(), "status=418")
	assert.Contains(t, logs.String(), "path=/brew")
}
