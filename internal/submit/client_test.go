package submit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRow() models.CycleRow {
	var server models.ServerMetricRecord
	server.Set(models.Load1, models.Rate(0.25))
	return models.NewCycleRow(models.RowInput{
		CycleID:       "c1",
		Timestamp:     time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		Server:        server,
		ServerMetrics: []models.ServerMetric{models.Load1, models.Load5},
	})
}

func TestSendPostsFlatJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/submit-metrics", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "pulse-disk-collector/test", r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/api", "test", time.Second)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/api/submit-metrics", client.URL())

	require.NoError(t, client.Send(context.Background(), sampleRow()))
	assert.Equal(t, 0.25, got["load1"])
	assert.Nil(t, got["load5"], "missing is null")
	assert.Contains(t, got, "load5")
	assert.Equal(t, "c1", got["cycle_id"])
}

func TestSendReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad metrics payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/", "test", time.Second)
	require.NoError(t, err)

	err = client.Send(context.Background(), sampleRow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad metrics payload")
}

func TestNewClientValidatesURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "ftp://example.com/", "example.com/api/"} {
		_, err := NewClient(raw, "test", time.Second)
		assert.Error(t, err, raw)
	}
}
