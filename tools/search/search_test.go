package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nevindra/courier"
)

const article = `<html><head><title>Mercury</title></head><body>
<article><h1>Mercury retrograde explained</h1>
<p>Mercury appears to move backwards in the sky three or four times a year. The effect is an optical illusion caused by the relative orbits of Earth and Mercury.</p>
<p>Astrologers associate the period with miscommunication, delayed travel and technology hiccups, and suggest double checking plans.</p>
<p>The next retrograde period begins in late November and lasts about three weeks, ending in mid December.</p>
<p>During the shadow period before and after the retrograde, many people prefer to review rather than launch new projects. Contracts, travel bookings and large purchases are traditionally postponed until the planet stations direct again.</p>
<p>Astronomically nothing changes about Mercury itself. Its orbit is faster than ours, so from our vantage point it periodically seems to reverse course against the background stars before resuming its usual eastward motion.</p>
</article></body></html>`

func fastPolicy() courier.RetryPolicy {
	return courier.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, AttemptTimeout: time.Second}
}

func newBrave(t *testing.T, failFirst int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.Header.Get("X-Subscription-Token") != "brave-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if int(n) <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query().Get("q")
		fmt.Fprintf(w, `{"web":{"results":[
			{"title":"Mercury retrograde","url":"%s/page","description":"All about <strong>%s</strong>"},
			{"title":"Broken","url":"%s/missing","description":"404 page"},
			{"title":"Third","url":"https://example.invalid/x","description":"not fetched"}
		]}}`, srv.URL, q, srv.URL)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(article))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSearch_ResultsAndExcerpts(t *testing.T) {
	srv, _ := newBrave(t, 0)
	tool := New("brave-key", WithEndpoint(srv.URL+"/search"), WithRetryPolicy(fastPolicy()))

	results, err := tool.Search(context.Background(), "mercury retrograde")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "All about mercury retrograde", results[0].Snippet)
	assert.Contains(t, results[0].Excerpt, "optical illusion")
	assert.Empty(t, results[1].Excerpt, "404 page leaves excerpt empty")
	assert.Empty(t, results[2].Excerpt, "only the first two pages are fetched")
}

func TestSearch_RetriesTransient(t *testing.T) {
	srv, calls := newBrave(t, 2)
	tool := New("brave-key", WithEndpoint(srv.URL+"/search"), WithRetryPolicy(fastPolicy()), WithFetchPages(0))

	results, err := tool.Search(context.Background(), "moon")
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_PermanentErrorNotRetried(t *testing.T) {
	srv, calls := newBrave(t, 0)
	tool := New("wrong-key", WithEndpoint(srv.URL+"/search"), WithRetryPolicy(fastPolicy()))

	_, err := tool.Search(context.Background(), "moon")
	require.Error(t, err)
	assert.False(t, courier.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearch_MaxResults(t *testing.T) {
	srv, _ := newBrave(t, 0)
	tool := New("brave-key", WithEndpoint(srv.URL+"/search"), WithMaxResults(1), WithFetchPages(0))

	results, err := tool.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestExecute(t *testing.T) {
	srv, _ := newBrave(t, 0)
	tool := New("brave-key", WithEndpoint(srv.URL+"/search"), WithFetchPages(0))

	res, err := tool.Execute(context.Background(), "web_search", json.RawMessage(`{"query":"venus"}`))
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.True(t, strings.HasPrefix(res.Content, "[1] Mercury retrograde ("))
	assert.Contains(t, res.Content, "All about venus")
}

func TestExecute_BadInput(t *testing.T) {
	tool := New("brave-key")

	res, err := tool.Execute(context.Background(), "web_search", json.RawMessage(`{nope`))
	require.NoError(t, err)
	assert.Contains(t, res.Error, "invalid args")

	res, err = tool.Execute(context.Background(), "web_search", json.RawMessage(`{"query":"  "}`))
	require.NoError(t, err)
	assert.Equal(t, "query is required", res.Error)
}

func TestExecute_Unconfigured(t *testing.T) {
	res, err := New("").Execute(context.Background(), "web_search", json.RawMessage(`{"query":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "web search is not configured", res.Error)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, `No results found for "x".`, Format("x", nil))

	out := Format("x", []Result{
		{Title: "A", URL: "https://a", Snippet: "snip"},
		{Title: "B", URL: "https://b", Excerpt: "body"},
	})
	assert.Equal(t, "[1] A (https://a)\nsnip\n\n[2] B (https://b)\nbody", out)
}

func TestFetch_RejectsNonHTTP(t *testing.T) {
	_, err := New("k").Fetch(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	// "é" is two bytes; a cut inside it backs off to the rune start.
	assert.Equal(t, "a...", truncate("aé", 2))
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "a bold move", stripTags("a <strong>bold</strong> move"))
}

func TestDefinitions(t *testing.T) {
	defs := New("k").Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "web_search", defs[0].Name)
	assert.True(t, json.Valid(defs[0].Parameters))
}
