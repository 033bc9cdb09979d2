package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trustscore/internal/resilience"
)

func probeFor(ts *httptest.Server, trusted bool) *Probe {
	p := NewProbe(2*time.Second, "trustscore-test")
	if trusted {
		client := ts.Client()
		client.CheckRedirect = p.client.CheckRedirect
		p.client = client
	}
	p.target = func(string) string { return ts.URL + "/" }
	return p
}

func TestProbe_ValidCertificate(t *testing.T) {
	var ua string
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sig, err := probeFor(ts, true).Fetch(context.Background(), "example.com")
	require.NoError(t, err)
	assert.True(t, *sig.SSLValid)
	assert.Equal(t, http.StatusOK, *sig.HTTPStatus)
	assert.Equal(t, "trustscore-test", ua)
}

func TestProbe_UntrustedCertificate(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sig, err := probeFor(ts, false).Fetch(context.Background(), "example.com")
	require.NoError(t, err)
	assert.False(t, *sig.SSLValid)
	assert.Nil(t, sig.HTTPStatus)
}

func TestProbe_HeadNotAllowedFallsBackToGet(t *testing.T) {
	var methods []string
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	sig, err := probeFor(ts, true).Fetch(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, *sig.HTTPStatus)
	assert.Equal(t, []string{http.MethodHead, http.MethodGet}, methods)
}

func TestProbe_RedirectNotFollowed(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	defer ts.Close()

	sig, err := probeFor(ts, true).Fetch(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, *sig.HTTPStatus)
}

func TestProbe_ConnectionRefusedIsTransient(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	p := probeFor(ts, true)
	ts.Close()

	_, err := p.Fetch(context.Background(), "example.com")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, "probe", p.Name())
}
