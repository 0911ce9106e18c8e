package util

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusOK)
			return
		}
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRobotsChecker_Rules(t *testing.T) {
	srv, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\nCrawl-delay: 2\n")
	checker := NewRobotsChecker(srv.Client(), "casesweep/0.1 (+https://example.test)", time.Second)
	ctx := context.Background()

	allowed, delay, err := checker.CanFetch(ctx, srv.URL+"/jsonPost/advancedCaseSearch")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2*time.Second, delay)

	allowed, _, err = checker.CanFetch(ctx, srv.URL+"/private/thing")
	require.NoError(t, err)
	assert.False(t, allowed)

	_, err = checker.Check(ctx, srv.URL+"/private/thing")
	assert.ErrorIs(t, err, ErrDisallowed)
	delay, err = checker.Check(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, delay, "crawl delay should reach the caller")

	assert.Equal(t, int32(1), hits.Load(), "robots.txt should be fetched once per host")

	checker.Clear()
	_, _, _ = checker.CanFetch(ctx, srv.URL)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRobotsChecker_MissingFileAllows(t *testing.T) {
	srv, _ := robotsServer(t, http.StatusNotFound, "")
	checker := NewRobotsChecker(srv.Client(), "casesweep", time.Second)

	delay, err := checker.Check(context.Background(), srv.URL+"/anything")
	require.NoError(t, err)
	assert.Zero(t, delay)
}

func TestRobotsChecker_UnreachableAllows(t *testing.T) {
	checker := NewRobotsChecker(nil, "casesweep", 100*time.Millisecond)
	allowed, _, err := checker.CanFetch(context.Background(), "http://127.0.0.1:1/x")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRobotsChecker_BadURL(t *testing.T) {
	checker := NewRobotsChecker(nil, "casesweep", time.Second)
	_, _, err := checker.CanFetch(context.Background(), "::bad")
	assert.Error(t, err)
}

func TestNormalizeUserAgent(t *testing.T) {
	assert.Equal(t, "casesweep", NormalizeUserAgent("casesweep/0.1 (+https://github.com/ppiankov/casesweep)"))
	assert.Equal(t, "Mozilla", NormalizeUserAgent("Mozilla/5.0"))
	assert.Equal(t, "", NormalizeUserAgent(""))
}
