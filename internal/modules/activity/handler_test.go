package activity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/drawspace/core/internal/config"
	"github.com/drawspace/core/internal/presence"
	"github.com/drawspace/core/internal/transport"
)

func testConfig() config.PresenceConfig {
	return config.PresenceConfig{
		HeartbeatIntervalMS:   30_000,
		OfflineTimeoutMS:      60_000,
		CursorIntervalMS:      100,
		ActivityQuietWindowMS: 2_000,
		TypingTimeoutMS:       3_000,
		SweepIntervalMS:       15_000,
	}
}

func newTestRouter(t *testing.T, tr transport.Transport) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(tr, testConfig(), zaptest.NewLogger(t)).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func seedRecord(t *testing.T, tr transport.Transport, scope presence.Scope, rec presence.Record) {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, tr.Set(context.Background(), scope.Key(), rec.UserID, data))
}

func TestGetPresenceGlobal(t *testing.T) {
	t.Parallel()

	tr := transport.NewMemory()
	now := time.Now().UnixMilli()
	seedRecord(t, tr, presence.GlobalScope(), presence.Record{
		UserID: "u1", DisplayName: "Alice", Online: true, LastSeen: now, Activity: presence.ActivityEditing,
	})
	seedRecord(t, tr, presence.GlobalScope(), presence.Record{
		UserID: "u2", DisplayName: "Bob", Online: true, LastSeen: now, Activity: presence.ActivityIdle,
	})

	r := newTestRouter(t, tr)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/presence", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []presence.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, "u1", body.Data[0].UserID)
	require.Equal(t, "u2", body.Data[1].UserID)
}

func TestGetPresenceFiltersStaleRecords(t *testing.T) {
	t.Parallel()

	tr := transport.NewMemory()
	seedRecord(t, tr, presence.ProjectScope("p1"), presence.Record{
		UserID: "fresh", LastSeen: time.Now().UnixMilli(),
	})
	seedRecord(t, tr, presence.ProjectScope("p1"), presence.Record{
		UserID: "stale", LastSeen: time.Now().Add(-5 * time.Minute).UnixMilli(),
	})

	r := newTestRouter(t, tr)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/presence?project=p1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []presence.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "fresh", body.Data[0].UserID)
}

func TestGetPresenceCanvasScope(t *testing.T) {
	t.Parallel()

	tr := transport.NewMemory()
	seedRecord(t, tr, presence.CanvasScope("p1", "c1"), presence.Record{
		UserID: "u1", LastSeen: time.Now().UnixMilli(),
		Cursor: &presence.Cursor{X: 3, Y: 4},
	})

	r := newTestRouter(t, tr)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/presence?project=p1&canvas=c1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []presence.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.NotNil(t, body.Data[0].Cursor)
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	tr := transport.NewMemory()
	now := time.Now().UnixMilli()
	seedRecord(t, tr, presence.GlobalScope(), presence.Record{
		UserID: "u1", Online: true, LastSeen: now, Activity: presence.ActivityEditing, Typing: true,
	})
	seedRecord(t, tr, presence.GlobalScope(), presence.Record{
		UserID: "u2", Online: true, LastSeen: now, Activity: presence.ActivityAway,
	})

	r := newTestRouter(t, tr)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/presence/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var stats presence.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, 2, stats.Online)
	require.Equal(t, 1, stats.Active)
	require.Equal(t, []string{"u1"}, stats.TypingUsers)
	require.Equal(t, []string{"u1"}, stats.EditingUsers)
}

func TestPresenceUnavailableTransport(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, transport.NewNoop())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/presence", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
