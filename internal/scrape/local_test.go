package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFetcher_StripsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Acme</title><style>body{color:red}</style></head>
<body><script>var x = 1;</script><h1>Welcome</h1><p>We build &amp; ship great products.</p></body></html>`))
	}))
	defer srv.Close()

	f := NewLocalFetcher(15 * time.Second)
	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "Welcome")
	assert.Contains(t, text, "build & ship great products")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "color:red")
}

func TestLocalFetcher_CollapsesWhitespace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<p>one</p>\n\n\n<p>two\t\tthree</p>"))
	}))
	defer srv.Close()

	f := NewLocalFetcher(15 * time.Second)
	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "one two three", text)
}

func TestLocalFetcher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewLocalFetcher(15 * time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestLocalFetcher_RetriesTransientStatus(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<p>back up</p>"))
	}))
	defer srv.Close()

	f := NewLocalFetcher(15 * time.Second)
	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "back up", text)
	assert.Equal(t, 2, calls)
}

func TestLocalFetcher_SetsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	defer srv.Close()

	f := NewLocalFetcher(15 * time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, ua, "Mozilla/5.0")
}

func TestLocalFetcher_Name(t *testing.T) {
	assert.Equal(t, "local_http", NewLocalFetcher(time.Second).Name())
}
