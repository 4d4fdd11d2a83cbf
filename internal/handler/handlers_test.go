package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovoronin/pgobserve/internal/history"
	models "github.com/ovoronin/pgobserve/internal/model"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) PingContext(ctx context.Context) error {
	return p.err
}

func testSummary(key string) *models.Summary {
	knobs := &models.Knobs{
		Global: map[string]map[string]any{
			"global": {"shared_buffers": "16384"},
		},
	}
	return &models.Summary{
		DBKey:          key,
		OrganizationID: "org-1",
		Version:        "13.4",
		Knobs:          knobs,
	}
}

func testRequest(t *testing.T, ts *httptest.Server, path string) *http.Response {
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestObservationHandler(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	log := history.NewLog(5)
	ts := httptest.NewServer(Router(log, &fakePinger{}, logger.Sugar()))
	defer ts.Close()

	// Before the first cycle there is nothing to serve
	r := testRequest(t, ts, "/observation")
	defer r.Body.Close()
	assert.Equal(t, http.StatusNotFound, r.StatusCode)

	log.Add(testSummary("db-1"))

	r2 := testRequest(t, ts, "/observation")
	defer r2.Body.Close()
	assert.Equal(t, http.StatusOK, r2.StatusCode)
	assert.Equal(t, "application/json", r2.Header.Get("Content-Type"))

	var got models.Summary
	require.NoError(t, json.NewDecoder(r2.Body).Decode(&got))
	assert.Equal(t, "db-1", got.DBKey)
	assert.Equal(t, "org-1", got.OrganizationID)
	assert.Equal(t, "13.4", got.Version)
}

func TestHistoryHandler(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	log := history.NewLog(5)
	ts := httptest.NewServer(Router(log, &fakePinger{}, logger.Sugar()))
	defer ts.Close()

	// An empty history serves an empty list, not an error
	r := testRequest(t, ts, "/observation/history")
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)

	var empty []*models.Summary
	require.NoError(t, json.NewDecoder(r.Body).Decode(&empty))
	assert.Empty(t, empty)

	log.Add(testSummary("cycle-1"))
	log.Add(testSummary("cycle-2"))

	r2 := testRequest(t, ts, "/observation/history")
	defer r2.Body.Close()
	assert.Equal(t, http.StatusOK, r2.StatusCode)

	var got []*models.Summary
	require.NoError(t, json.NewDecoder(r2.Body).Decode(&got))
	require.Len(t, got, 2)
	// Newest first
	assert.Equal(t, "cycle-2", got[0].DBKey)
	assert.Equal(t, "cycle-1", got[1].DBKey)
}

func TestKnobsHandler(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	log := history.NewLog(5)
	ts := httptest.NewServer(Router(log, &fakePinger{}, logger.Sugar()))
	defer ts.Close()

	r := testRequest(t, ts, "/knobs")
	defer r.Body.Close()
	assert.Equal(t, http.StatusNotFound, r.StatusCode)

	log.Add(testSummary("db-1"))

	r2 := testRequest(t, ts, "/knobs")
	defer r2.Body.Close()
	assert.Equal(t, http.StatusOK, r2.StatusCode)

	var got models.Knobs
	require.NoError(t, json.NewDecoder(r2.Body).Decode(&got))
	assert.Equal(t, "16384", got.Global["global"]["shared_buffers"])
}

func TestPingHandler(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ts := httptest.NewServer(Router(history.NewLog(5), &fakePinger{}, logger.Sugar()))
	defer ts.Close()

	r := testRequest(t, ts, "/ping")
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}

func TestPingHandler_DatabaseDown(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	pinger := &fakePinger{err: errors.New("connection refused")}
	ts := httptest.NewServer(Router(history.NewLog(5), pinger, logger.Sugar()))
	defer ts.Close()

	r := testRequest(t, ts, "/ping")
	defer r.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, r.StatusCode)
	body, _ := io.ReadAll(r.Body)
	assert.Contains(t, string(body), "connection refused")
}
