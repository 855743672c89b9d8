package verdict

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrygate/sentrygate/internal/models"
)

func TestFetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/verdict", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "203.0.113.4", body["identity"])

		json.NewEncoder(w).Encode(models.Verdict{
			AnomalyScore:      0.82,
			AttackType:        "SQL_INJECTION",
			AttackProbability: 0.9,
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0)
	v, err := client.Fetch(context.Background(), models.RequestData{
		RequestID: "req-1",
		Identity:  "203.0.113.4",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.82, v.AnomalyScore, 1e-9)
	assert.Equal(t, "SQL_INJECTION", v.AttackType)
	assert.InDelta(t, 0.9, v.AttackProbability, 1e-9)
}

func TestFetch_ServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0)
	v, err := client.Fetch(context.Background(), models.RequestData{RequestID: "req-1"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, v)
}

func TestFetch_ConnectionRefusedIsUnavailable(t *testing.T) {
	// Reserved test address, nothing listening.
	client := NewHTTPClient("http://127.0.0.1:1", 100*time.Millisecond)

	v, err := client.Fetch(context.Background(), models.RequestData{RequestID: "req-1"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, v)
}

func TestFetch_TimeoutIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 20*time.Millisecond)
	_, err := client.Fetch(context.Background(), models.RequestData{RequestID: "req-1"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFetch_MalformedBodyIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 0)
	_, err := client.Fetch(context.Background(), models.RequestData{RequestID: "req-1"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFetch_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewHTTPClient(server.URL, 0)
	_, err := client.Fetch(ctx, models.RequestData{RequestID: "req-1"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
