package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSnapshotter struct {
	snap relay.Snapshot
	err  error
}

func (s stubSnapshotter) Snapshot(context.Context) (relay.Snapshot, error) {
	return s.snap, s.err
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		snapshot   stubSnapshotter
		wantStatus int
		wantBody   string
	}{
		{
			name: "running",
			snapshot: stubSnapshotter{snap: relay.Snapshot{
				Sessions: []relay.SessionID{1, 2},
				Rooms:    map[string][]relay.SessionID{"Main": {1}, "lobby": {2}},
			}},
			wantStatus: http.StatusOK,
			wantBody:   "GoChat relay is running! sessions=2 rooms=2",
		},
		{
			name:       "stopped relay",
			snapshot:   stubSnapshotter{err: relay.ErrStopped},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "GoChat relay is unavailable: " + relay.ErrStopped.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			HealthHandler(tt.snapshot)(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, rr.Body.String())
		})
	}
}

func TestRoutes(t *testing.T) {
	configureForTest(t, nil)
	coord := startTestRelay(t)
	ts := startTestHTTPServer(t, coord)

	tests := []struct {
		path        string
		wantStatus  int
		contentType string
		contains    string
	}{
		{path: "/", wantStatus: http.StatusOK, contentType: "text/plain", contains: "sessions=0 rooms=1"},
		{path: "/test", wantStatus: http.StatusOK, contentType: "text/html", contains: "GoChat Relay Test"},
		{path: "/ws", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			}
			assert.Contains(t, string(body), tt.contains)
		})
	}
}

func TestHealthReflectsConnections(t *testing.T) {
	configureForTest(t, nil)
	coord := startTestRelay(t)
	ts := startTestHTTPServer(t, coord)

	a := newWSTestPeer(t, ts)
	waitForSessions(t, coord, 1)
	a.send(t, "/join lobby")
	require.Eventually(t, func() bool {
		snap, err := coord.Snapshot(context.Background())
		return err == nil && len(snap.Rooms) == 2
	}, recvTimeout, 5*time.Millisecond)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "GoChat relay is running! sessions=1 rooms=2", string(body))
}

func TestHealthAfterRelayStop(t *testing.T) {
	configureForTest(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	coord := StartRelay(ctx)
	cancel()
	require.NoError(t, StopRelay(coord, recvTimeout))

	rr := httptest.NewRecorder()
	HealthHandler(coord)(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
