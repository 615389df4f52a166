package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
)

// CreateMockSynthesisService creates a mock speech synthesis service.
// Word timings are generated deterministically: each word spans 0.4s
// with a 0.1s gap, so the same text always yields the same timings.
func CreateMockSynthesisService(t testing.TB) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "healthy",
			})

		case "/synthesize":
			var req struct {
				Text     string `json:"text"`
				Language string `json:"language"`
				Voice    string `json:"voice"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]interface{}{"error": "bad request body"})
				return
			}

			words := splitWords(req.Text)
			if len(words) == 0 {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]interface{}{"error": "no speakable text"})
				return
			}

			const wordSpan, wordGap = 0.4, 0.1
			timings := make([]map[string]interface{}, 0, len(words))
			cursor := 0.0
			for _, word := range words {
				timings = append(timings, map[string]interface{}{
					"text":  word,
					"start": cursor,
					"end":   cursor + wordSpan,
				})
				cursor += wordSpan + wordGap
			}
			duration := cursor - wordGap

			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"audio_ref":   fmt.Sprintf("audio/%s-%d.wav", req.Voice, len(words)),
				"duration":    duration,
				"sample_rate": 16000,
				"words":       timings,
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

// MockRenderer is a fake renderer service accepting plan submissions and
// streaming scripted progress over WebSocket.
type MockRenderer struct {
	Server    *httptest.Server
	submitted atomic.Int64
}

// Submitted reports how many plans were submitted.
func (m *MockRenderer) Submitted() int64 {
	return m.submitted.Load()
}

// CreateMockRenderer creates a MockRenderer. Each submitted plan gets a
// job id; watching a job yields one progress event and a completion.
func CreateMockRenderer(t testing.TB) *MockRenderer {
	t.Helper()
	m := &MockRenderer{}
	upgrader := websocket.Upgrader{}

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/health":
			w.WriteHeader(http.StatusOK)

		case r.URL.Path == "/jobs" && r.Method == http.MethodPost:
			var plan struct {
				ID          string `json:"id"`
				TotalFrames int    `json:"total_frames"`
			}
			if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			n := m.submitted.Add(1)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     fmt.Sprintf("job-%d", n),
				"status": "queued",
			})

		case strings.HasPrefix(r.URL.Path, "/jobs/") && strings.HasSuffix(r.URL.Path, "/ws"):
			jobID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/ws")
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()

			conn.WriteJSON(map[string]interface{}{
				"type": "progress", "job_id": jobID, "frame": 24, "total": 48, "progress": 0.5,
			})
			conn.WriteJSON(map[string]interface{}{
				"type": "complete", "job_id": jobID, "output_id": "video/" + jobID + ".mp4",
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return m
}

// Close shuts the mock renderer down.
func (m *MockRenderer) Close() {
	m.Server.Close()
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '\'':
			return false
		}
		return true
	})
}
