package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Queueue0/tgmail/internal/dialogue"
)

type fixedStats dialogue.Stats

func (f fixedStats) Stats() dialogue.Stats { return dialogue.Stats(f) }

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Router(fixedStats{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestStats(t *testing.T) {
	rec := httptest.NewRecorder()
	src := fixedStats{Active: 3, Delivered: 10, Failed: 2}
	Router(src).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]int{"active_conversations": 3, "delivered": 10, "failed": 2}, got)
}

func TestUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	Router(fixedStats{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
