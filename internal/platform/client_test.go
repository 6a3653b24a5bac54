package platform

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.PlatformConfig{BaseURL: srv.URL + "/", Token: "secret", Timeout: 5 * time.Second}, zaptest.NewLogger(t))
	require.NoError(t, err)
	c.backoffFactory = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) }
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.PlatformConfig{}, zaptest.NewLogger(t))
	assert.EqualError(t, err, "platform base_url is required")

	_, err = NewClient(config.PlatformConfig{BaseURL: "not a url"}, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = NewClient(config.PlatformConfig{BaseURL: "https://social.example", ProxyURL: "http://%zz"}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "invalid platform proxy_url")

	c, err := NewClient(config.PlatformConfig{BaseURL: "https://social.example", Timeout: 3 * time.Second}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
}

func TestClient_FetchStimuli(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/stimuli", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"stimuli":[{"type":"mention","external_id":"st-1","text":"hi @resonance","author_id":"alice","timestamp":"2026-06-01T12:00:00Z"}]}`)
	})

	stimuli, err := c.FetchStimuli(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, stimuli, 1)
	assert.Equal(t, schemas.StimulusMention, stimuli[0].Type)
	assert.Equal(t, "alice", stimuli[0].AuthorID)
	assert.True(t, stimuli[0].Timestamp.Equal(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)))
}

func TestClient_GetRetriesTransientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"likes":4,"replies":1,"shares":0,"impressions":900}`)
	})

	m, err := c.FetchMetrics(context.Background(), "art-1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 900, m.Impressions)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GetDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such artifact", http.StatusNotFound)
	})

	_, err := c.FetchMetrics(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_FetchMetricsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	m, err := c.FetchMetrics(context.Background(), "art-1")
	require.NoError(t, err)
	assert.Nil(t, m, "202 means not computed yet, distinct from zero engagement")
}

func TestClient_PostAction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/actions", r.URL.Path)
		var d schemas.Decision
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&d))
		assert.Equal(t, schemas.DecisionReply, d.Type)
		assert.Equal(t, "what changed?", d.Content)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"artifact_id":"art-9","posted_at":"2026-06-01T12:00:00Z"}`)
	})

	receipt, err := c.PostAction(context.Background(), schemas.Decision{Type: schemas.DecisionReply, TargetID: "st-1", Content: "what changed?"})
	require.NoError(t, err)
	assert.Equal(t, "art-9", receipt.ArtifactID)
}

func TestClient_PostActionIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.PostAction(context.Background(), schemas.Decision{Type: schemas.DecisionLike, TargetID: "st-1"})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_PostActionRequiresArtifactID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	_, err := c.PostAction(context.Background(), schemas.Decision{Type: schemas.DecisionLike, TargetID: "st-1"})
	assert.Error(t, err)
}
