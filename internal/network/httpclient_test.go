package network

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewDefaultClientConfig(t *testing.T) {
	cfg := NewDefaultClientConfig()
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultMaxIdleConnsPerHost, cfg.MaxIdleConnsPerHost)
	assert.True(t, cfg.ForceHTTP2)
}

func TestNewHTTPTransport(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		tr := NewHTTPTransport(nil)
		assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
		assert.Equal(t, DefaultIdleConnTimeout, tr.IdleConnTimeout)
		assert.True(t, tr.ForceAttemptHTTP2)
		assert.Contains(t, tr.TLSClientConfig.NextProtos, "h2")
	})

	t.Run("HTTP1Only", func(t *testing.T) {
		cfg := NewDefaultClientConfig()
		cfg.ForceHTTP2 = false
		cfg.Logger = zaptest.NewLogger(t)
		tr := NewHTTPTransport(cfg)
		assert.Equal(t, []string{"http/1.1"}, tr.TLSClientConfig.NextProtos)
	})

	t.Run("Proxy", func(t *testing.T) {
		proxy, _ := url.Parse("http://proxy.internal:3128")
		cfg := NewDefaultClientConfig()
		cfg.ProxyURL = proxy
		tr := NewHTTPTransport(cfg)

		req, _ := http.NewRequest(http.MethodGet, "https://social.example/v1/stimuli", nil)
		got, err := tr.Proxy(req)
		require.NoError(t, err)
		assert.Equal(t, proxy, got)
	})
}

func TestNewClient_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := NewDefaultClientConfig()
	cfg.RequestTimeout = 2 * time.Second
	client := NewClient(cfg)
	assert.Equal(t, 2*time.Second, client.Timeout)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
