package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoggingMiddleware(t *testing.T) {
	// Create a test logger
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	defer logger.Sync()

	// Create a test handler that returns a simple response
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Hello, World!"))
	})

	// Wrap the handler with the logging middleware
	handler := Logging(logger.Sugar())(nextHandler)

	req := httptest.NewRequest("GET", "/observation", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// The middleware must pass the response through unchanged
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, World!", rec.Body.String())
}

func TestGzipMiddleware_NoGzipSupport(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Hello, World!"))
	})

	handler := Gzip(nextHandler)

	// Request without gzip support
	req := httptest.NewRequest("GET", "/observation", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, World!", rec.Body.String())
	// No Content-Encoding header is set
	assert.Equal(t, "", rec.Header().Get("Content-Encoding"))
}

func TestGzipMiddleware_WithGzipSupport(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Hello, World!"))
	})

	handler := Gzip(nextHandler)

	req := httptest.NewRequest("GET", "/observation", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	// Decompress the response body
	reader, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	defer reader.Close()

	var decompressed bytes.Buffer
	_, err = io.Copy(&decompressed, reader)
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", decompressed.String())
}

func TestGzipMiddleware_LargeResponse(t *testing.T) {
	// Observation payloads are large and repetitive, which is the case
	// compression exists for
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		response := strings.Repeat(`{"measurement":"database_statistics"}`, 1000)
		w.Write([]byte(response))
	})

	handler := Gzip(nextHandler)

	req := httptest.NewRequest("GET", "/observation", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	reader, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	defer reader.Close()

	var decompressed bytes.Buffer
	_, err = io.Copy(&decompressed, reader)
	require.NoError(t, err)

	expected := strings.Repeat(`{"measurement":"database_statistics"}`, 1000)
	assert.Equal(t, expected, decompressed.String())
}

func TestLoggingResponseWriter_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	responseData := &responseData{}
	lw := loggingResponseWriter{
		ResponseWriter: rec,
		responseData:   responseData,
	}

	data := []byte("Hello, World!")
	size, err := lw.Write(data)

	assert.NoError(t, err)
	assert.Equal(t, len(data), size)
	assert.Equal(t, len(data), responseData.size)
}

func TestLoggingResponseWriter_WriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	responseData := &responseData{}
	lw := loggingResponseWriter{
		ResponseWriter: rec,
		responseData:   responseData,
	}

	lw.WriteHeader(http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, responseData.status)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
