package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/gazetest/internal/api"
	"github.com/vytor/gazetest/internal/finalize"
	"github.com/vytor/gazetest/internal/jobs"
	"github.com/vytor/gazetest/internal/layout"
	"github.com/vytor/gazetest/internal/repository/sqlite"
	"github.com/vytor/gazetest/internal/services"
	"github.com/vytor/gazetest/internal/storage"
	"github.com/vytor/gazetest/internal/testutil"
	"github.com/vytor/gazetest/internal/worker"
)

var t0 = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

type atomicClock struct{ ns atomic.Int64 }

func (c *atomicClock) Now() time.Time       { return time.Unix(0, c.ns.Load()).UTC() }
func (c *atomicClock) Set(t time.Time)      { c.ns.Store(t.UnixNano()) }
func (c *atomicClock) Add(d time.Duration) { c.ns.Add(int64(d)) }

type testServer struct {
	*httptest.Server
	clock *atomicClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sqlDB := testutil.NewTestDB(t)
	t.Cleanup(func() { testutil.MustClose(t, sqlDB) })

	blobs, err := storage.NewFSStore(t.TempDir(), []byte("test-key"))
	require.NoError(t, err)

	sessionRepo := sqlite.NewSessionRepository(sqlDB)
	resultRepo := sqlite.NewResultRepository(sqlDB)
	fin := finalize.New(blobs, resultRepo, sessionRepo, finalize.WithBaseDelay(time.Millisecond))

	pool := worker.NewPool(1, 8)
	queue := jobs.NewWorkerQueue(pool, fin, nil)

	clock := &atomicClock{}
	clock.Set(t0)
	svc := services.NewSessionService(sessionRepo, resultRepo, queue, nil, services.RuntimeConfig{
		Clock:     clock,
		NewSource: func(string) layout.Source { return layout.NewSource(3) },
	})
	queue.SetOnDone(svc.FinalizationDone)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		pool.Stop()
		cancel()
	})

	srv := &api.Server{
		DB:       sqlDB,
		Sessions: svc,
		Review:   services.NewReviewService(resultRepo, blobs, time.Hour),
		Blobs:    blobs,
		Queue:    queue,
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, clock: clock}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func createTwoRoundSession(t *testing.T, ts *testServer) string {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/sessions", map[string]any{
		"patient_ref": "p-1",
		"name":        "Caras",
		"rounds": []map[string]any{
			{"target_id": "a", "images": []map[string]any{{"id": "a"}, {"id": "b"}, {"id": "c"}}},
			{"target_id": "q", "images": []map[string]any{{"id": "p"}, {"id": "q"}}},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}](t, body)
	assert.Equal(t, "pending", created.Status)
	return created.ID
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := createTwoRoundSession(t, ts)
	base := "/api/sessions/" + id

	resp, _ := ts.do(t, http.MethodGet, base+"/summary", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPost, base+"/start", map[string]any{
		"container": map[string]float64{"left": 0, "top": 0, "width": 750, "height": 550},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	snap := decode[struct {
		Phase  string `json:"phase"`
		Round  int    `json:"round"`
		Target struct {
			ID string `json:"id"`
		} `json:"target"`
	}](t, body)
	assert.Equal(t, "preview", snap.Phase)
	assert.Equal(t, 1, snap.Round)
	assert.Equal(t, "a", snap.Target.ID)

	resp, body = ts.do(t, http.MethodPost, base+"/skip", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	active := decode[struct {
		Phase      string            `json:"phase"`
		Placements []json.RawMessage `json:"placements"`
	}](t, body)
	assert.Equal(t, "active", active.Phase)
	assert.Len(t, active.Placements, 3)

	ts.clock.Add(300 * time.Millisecond)
	resp, body = ts.do(t, http.MethodPost, base+"/samples", map[string]any{
		"samples": []map[string]any{
			{"x": 375, "y": 275, "t": t0.Add(100 * time.Millisecond).UnixMilli()},
			{"x": -10, "y": 275, "t": t0.Add(300 * time.Millisecond).UnixMilli()},
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"received":2,"accepted":1}`, string(body))

	ts.clock.Add(512 * time.Millisecond)
	resp, body = ts.do(t, http.MethodPost, base+"/respond", map[string]string{"stimulus_id": "b"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	first := decode[struct {
		Ignored bool `json:"ignored"`
		Result  struct {
			Round          int    `json:"round"`
			ReactionTimeMs int64  `json:"reaction_time_ms"`
			Outcome        string `json:"result"`
		} `json:"result"`
	}](t, body)
	assert.False(t, first.Ignored)
	assert.Equal(t, 1, first.Result.Round)
	assert.Equal(t, int64(812), first.Result.ReactionTimeMs)
	assert.Equal(t, "fallado", first.Result.Outcome)

	// Round 2 is in preview: the click is ignored.
	resp, body = ts.do(t, http.MethodPost, base+"/respond", map[string]string{"stimulus_id": "q"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ignored":true}`, string(body))

	resp, _ = ts.do(t, http.MethodPost, base+"/skip", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ts.clock.Add(640 * time.Millisecond)
	resp, body = ts.do(t, http.MethodPost, base+"/respond", map[string]string{"stimulus_id": "q"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	require.Eventually(t, func() bool {
		resp, _ := ts.do(t, http.MethodGet, base+"/summary", nil)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	_, body = ts.do(t, http.MethodGet, base+"/summary", nil)
	summary := decode[struct {
		Duration     float64 `json:"duration"`
		CorrectCount int     `json:"correct_count"`
		ErrorCount   int     `json:"error_count"`
	}](t, body)
	assert.Equal(t, 1, summary.CorrectCount)
	assert.Equal(t, 1, summary.ErrorCount)
	assert.Equal(t, 1.0, summary.Duration)

	resp, body = ts.do(t, http.MethodGet, base+"/reaction-log?format=csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "round,reactionTime,result\n1,812,fallado\n2,640,acertado\n", string(body))

	require.Eventually(t, func() bool {
		_, body := ts.do(t, http.MethodGet, base+"/state", nil)
		return strings.Contains(string(body), `"phase":"finished"`)
	}, 5*time.Second, 20*time.Millisecond)

	resp, body = ts.do(t, http.MethodGet, base+"/rounds/1/heatmap?width=1000&height=500&cols=2&rows=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	hm := decode[struct {
		CSVURL      string `json:"csv_url"`
		SampleCount int    `json:"sample_count"`
		Points      []struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"points"`
		Grid struct {
			Cells [][]int `json:"cells"`
		} `json:"grid"`
	}](t, body)
	assert.Equal(t, 1, hm.SampleCount)
	require.Len(t, hm.Points, 1)
	assert.InDelta(t, 500.0, hm.Points[0].X, 1e-9)
	assert.InDelta(t, 250.0, hm.Points[0].Y, 1e-9)
	assert.Equal(t, [][]int{{0, 0}, {0, 1}}, hm.Grid.Cells)

	require.True(t, strings.HasPrefix(hm.CSVURL, "/files/eye-tracking-csvs/"+id+"/round_1.csv?"), hm.CSVURL)
	resp, body = ts.do(t, http.MethodGet, hm.CSVURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "x,y,t\n0.5,0.5,"+jsonInt(t0.Add(100*time.Millisecond).UnixMilli())+"\n", string(body))

	resp, body = ts.do(t, http.MethodGet, strings.Replace(hm.CSVURL, "sig=", "sig=00", 1), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", decode[errorBody](t, body).Error.Code)

	resp, body = ts.do(t, http.MethodPost, base+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", decode[errorBody](t, body).Error.Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestCancelRunningSession(t *testing.T) {
	ts := newTestServer(t)
	id := createTwoRoundSession(t, ts)
	base := "/api/sessions/" + id

	resp, _ := ts.do(t, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, base+"/cancel", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body := ts.do(t, http.MethodGet, base, nil)
	assert.Equal(t, "aborted", decode[struct {
		Status string `json:"status"`
	}](t, body).Status)

	resp, body = ts.do(t, http.MethodPost, base+"/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "SESSION_ABORTED", decode[errorBody](t, body).Error.Code)

	resp, _ = ts.do(t, http.MethodGet, base+"/summary", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSessions(t *testing.T) {
	ts := newTestServer(t)
	createTwoRoundSession(t, ts)
	createTwoRoundSession(t, ts)

	resp, body := ts.do(t, http.MethodGet, "/api/sessions?status=pending&patient=p-1&limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	list := decode[struct {
		Sessions []json.RawMessage `json:"sessions"`
		Total    int               `json:"total"`
	}](t, body)
	assert.Len(t, list.Sessions, 1)
	assert.Equal(t, 2, list.Total)

	resp, _ = ts.do(t, http.MethodGet, "/api/sessions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorResponses(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown session", http.MethodGet, "/api/sessions/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"not running", http.MethodPost, "/api/sessions/nope/skip", nil, http.StatusNotFound, "NOT_FOUND"},
		{"missing patient", http.MethodPost, "/api/sessions", map[string]any{"rounds": []any{}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", http.MethodPost, "/api/sessions", map[string]any{"bogus": 1}, http.StatusBadRequest, "BAD_REQUEST"},
		{"bad round number", http.MethodGet, "/api/sessions/x/rounds/one/heatmap", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing round data", http.MethodGet, "/api/sessions/x/rounds/1/heatmap", nil, http.StatusNotFound, "NOT_FOUND"},
		{"oversized grid", http.MethodGet, "/api/sessions/x/rounds/1/heatmap?cols=100000&rows=100000", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unsigned file", http.MethodGet, "/files/eye-tracking-csvs/x/round_1.csv", nil, http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, tt.code, decode[errorBody](t, body).Error.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","finalize_queue":0,"live_sessions":0}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, _ = ts.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
