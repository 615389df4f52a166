package render

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cueflow/internal/pipeline"
	"github.com/normanking/cueflow/internal/plan"
)

func testPlan() *plan.RenderPlan {
	return &plan.RenderPlan{
		ID:          "plan-1",
		AspectRatio: "16:9",
		Width:       1920,
		Height:      1080,
		FrameRate:   24,
		Duration:    2.0,
		TotalFrames: 48,
	}
}

func TestSubmit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/jobs", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var p plan.RenderPlan
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "plan-1", p.ID)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Job{ID: "job-42", Status: "queued"})
	}))
	defer server.Close()

	c := NewClient(&ClientConfig{ServerURL: server.URL, Timeout: 5 * time.Second}, zerolog.Nop())

	job, err := c.Submit(context.Background(), testPlan())
	require.NoError(t, err)
	assert.Equal(t, "job-42", job.ID)
	assert.Equal(t, "queued", job.Status)
}

func TestSubmitRecoversFromTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "queue full", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Job{ID: "job-42", Status: "queued"})
	}))
	defer server.Close()

	c := NewClient(&ClientConfig{ServerURL: server.URL, Timeout: 5 * time.Second, RetryBaseDelay: time.Millisecond}, zerolog.Nop())

	job, err := c.Submit(context.Background(), testPlan())
	require.NoError(t, err)
	assert.Equal(t, "job-42", job.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmitExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(&ClientConfig{ServerURL: server.URL, Timeout: 5 * time.Second, RetryBaseDelay: time.Millisecond}, zerolog.Nop())

	_, err := c.Submit(context.Background(), testPlan())
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrBackend)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmitConflictNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "plan already submitted", http.StatusConflict)
	}))
	defer server.Close()

	c := NewClient(&ClientConfig{ServerURL: server.URL, Timeout: 5 * time.Second, RetryBaseDelay: time.Millisecond}, zerolog.Nop())

	_, err := c.Submit(context.Background(), testPlan())
	require.Error(t, err)
	assert.NotErrorIs(t, err, pipeline.ErrBackend)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitUnreachableWrapsBackendError(t *testing.T) {
	c := NewClient(&ClientConfig{ServerURL: "http://127.0.0.1:1", Timeout: time.Second, RetryBaseDelay: time.Millisecond}, zerolog.Nop())

	_, err := c.Submit(context.Background(), testPlan())
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrBackend)
}

func TestWatchProgress(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/jobs/job-42/ws"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		conn.WriteJSON(ProgressEvent{Type: "progress", JobID: "job-42", Frame: 24, Total: 48, Progress: 0.5})
		conn.WriteJSON(ProgressEvent{Type: "complete", JobID: "job-42", OutputID: "video/out.mp4"})
	}))
	defer server.Close()

	c := NewClient(&ClientConfig{ServerURL: server.URL, Timeout: 5 * time.Second}, zerolog.Nop())

	ch, err := c.WatchProgress(context.Background(), "job-42")
	require.NoError(t, err)

	var events []ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, 0.5, events[0].Progress)
	assert.Equal(t, "complete", events[1].Type)
	assert.Equal(t, "video/out.mp4", events[1].OutputID)
}

func TestWatchProgressCancelled(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		// Hold the connection open without sending anything.
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	c := NewClient(&ClientConfig{ServerURL: server.URL, Timeout: 5 * time.Second}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.WatchProgress(ctx, "job-42")
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-ch:
		// A close or a final error event are both acceptable here.
		if open {
			_, open = <-ch
			assert.False(t, open)
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancellation")
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(&ClientConfig{ServerURL: server.URL, Timeout: 5 * time.Second}, zerolog.Nop())
	assert.NoError(t, c.Health(context.Background()))
}
