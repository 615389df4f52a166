package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cueflow/internal/timing"
)

func TestHTTPProviderSynthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/synthesize", r.URL.Path)
		require.Equal(t, "POST", r.Method)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hello world", req["text"])
		assert.Equal(t, "en", req["language"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"audio_ref":   "audio/abc123.wav",
			"duration":    1.5,
			"sample_rate": 16000,
			"words": []map[string]interface{}{
				{"text": "Hello", "start": 0.0, "end": 0.7},
				{"text": "world", "start": 0.7, "end": 1.5},
			},
		})
	}))
	defer server.Close()

	p := NewHTTPProvider(&HTTPConfig{ServiceURL: server.URL, Timeout: 5, DefaultVoice: "en-neutral", DefaultSpeed: 1.0}, zerolog.Nop())

	result, err := p.Synthesize(context.Background(), &SynthesizeRequest{
		Text:     "Hello world",
		Language: "en",
		VoiceID:  "en-neutral",
	})
	require.NoError(t, err)

	assert.Equal(t, "audio/abc123.wav", result.Track.Ref)
	assert.Equal(t, 1.5, result.Track.Duration)
	assert.Equal(t, 16000, result.Track.SampleRate)
	assert.Equal(t, "http_tts", result.Provider)

	require.Len(t, result.Marks, 2)
	assert.Equal(t, timing.KindWord, result.Marks[0].Kind)
	assert.Equal(t, "Hello", result.Marks[0].Text)
	assert.Equal(t, 0.7, result.Marks[0].End)
}

func TestHTTPProviderSynthesizeNoWordTimings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"audio_ref":   "audio/plain.wav",
			"duration":    2.0,
			"sample_rate": 22050,
		})
	}))
	defer server.Close()

	p := NewHTTPProvider(&HTTPConfig{ServiceURL: server.URL, Timeout: 5}, zerolog.Nop())

	result, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "hi", Language: "en"})
	require.NoError(t, err)
	assert.Nil(t, result.Marks, "backends without alignment omit word timings")
}

func TestHTTPProviderSynthesizeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewHTTPProvider(&HTTPConfig{ServiceURL: server.URL, Timeout: 5}, zerolog.Nop())

	_, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "hi", Language: "en"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPProviderHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		p := NewHTTPProvider(&HTTPConfig{ServiceURL: server.URL, Timeout: 5}, zerolog.Nop())
		assert.NoError(t, p.Health(context.Background()))
	})

	t.Run("unhealthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		p := NewHTTPProvider(&HTTPConfig{ServiceURL: server.URL, Timeout: 5}, zerolog.Nop())
		assert.Error(t, p.Health(context.Background()))
	})

	t.Run("unreachable", func(t *testing.T) {
		p := NewHTTPProvider(&HTTPConfig{ServiceURL: "http://127.0.0.1:1", Timeout: 1}, zerolog.Nop())
		assert.Error(t, p.Health(context.Background()))
	})
}

func TestHTTPProviderDefaults(t *testing.T) {
	p := NewHTTPProvider(nil, zerolog.Nop())
	assert.Equal(t, "http://localhost:8899", p.config.ServiceURL)
	assert.Equal(t, 1.0, p.config.DefaultSpeed)
}
