package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truth-pipeline/core/monitoring"
)

func TestGetStatus(t *testing.T) {
	tracker := monitoring.NewProgressTracker("run-xyz", 10)
	tracker.AddRows(42, 1, 2)
	tracker.RegionDone()

	h := NewStatusHandler(tracker)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap monitoring.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, "run-xyz", snap.RunID)
	assert.Equal(t, 10, snap.TotalRegions)
	assert.Equal(t, 1, snap.RegionsDone)
	assert.Equal(t, int64(42), snap.RowsWritten)
	assert.Equal(t, int64(1), snap.NaNCells)
	assert.Equal(t, int64(2), snap.ExcludedPairs)
}
