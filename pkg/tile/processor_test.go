package tile

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" || r.Header.Get("X-Api-Key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("tile:" + r.URL.Path))
	}))
	defer server.Close()

	f := NewHTTPFetcher(NewHTTPClient(5*time.Second), "test-agent", map[string]string{"X-Api-Key": "secret"})

	data, err := f.Fetch(context.Background(), server.URL+"/1/2/3")
	require.NoError(t, err)
	require.Equal(t, "tile:/1/2/3", string(data))

	_, err = f.Fetch(context.Background(), server.URL+"/missing")
	require.ErrorContains(t, err, "404")
}

func TestHTTPFetcherDefaultUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(server.Client(), "", nil).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, DefaultUserAgent, got)
}

func TestHTTPSink(t *testing.T) {
	var (
		mu    sync.Mutex
		store = map[string]string{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path == "/readonly" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		store[r.URL.Path] = r.Header.Get("Content-Type") + "|" + string(body)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	s := NewHTTPSink(server.Client(), "", nil)
	require.NoError(t, s.Write(context.Background(), server.URL+"/out/0/0/0.png", []byte("png"), "image/png"))
	require.Equal(t, "image/png|png", store["/out/0/0/0.png"])

	require.NoError(t, s.Write(context.Background(), server.URL+"/out/0/0/0.raw", []byte("raw"), ""))
	require.Equal(t, "application/octet-stream|raw", store["/out/0/0/0.raw"])

	require.Error(t, s.Write(context.Background(), server.URL+"/readonly", []byte("x"), ""))
}

func TestFSSinkAndFetcher(t *testing.T) {
	require := require.New(t)

	fs := afero.NewMemMapFs()
	sink := NewFSSink(fs)
	fetcher := NewFSFetcher(fs)
	ctx := context.Background()

	require.NoError(sink.Write(ctx, "out/3/1/2.raw", []byte{1, 2, 3}, ""))
	require.NoError(sink.Write(ctx, "file:///abs/tile.raw", []byte{4}, ""))
	require.NoError(sink.Write(ctx, "top.raw", []byte{5}, ""))

	data, err := fetcher.Fetch(ctx, "out/3/1/2.raw")
	require.NoError(err)
	require.Equal([]byte{1, 2, 3}, data)

	data, err = fetcher.Fetch(ctx, "/abs/tile.raw")
	require.NoError(err)
	require.Equal([]byte{4}, data)

	data, err = sink.Fetch(ctx, "file://top.raw")
	require.NoError(err)
	require.Equal([]byte{5}, data)

	_, err = fetcher.Fetch(ctx, "nope.raw")
	require.Error(err)
}

func TestRouter(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote"))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	require.NoError(afero.WriteFile(fs, "local.raw", []byte("local"), 0o644))

	r := NewRouter(server.Client(), "", nil, fs)
	ctx := context.Background()

	data, err := r.Fetch(ctx, server.URL+"/x")
	require.NoError(err)
	require.Equal("remote", string(data))

	data, err = r.Fetch(ctx, "local.raw")
	require.NoError(err)
	require.Equal("local", string(data))

	require.NoError(r.Write(ctx, "written/a.raw", []byte("a"), "text/plain"))
	ok, err := afero.Exists(fs, "written/a.raw")
	require.NoError(err)
	require.True(ok)
}

func TestRemoteOnly(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote"))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	require.NoError(afero.WriteFile(fs, "/etc/secret", []byte("local"), 0o644))
	f := RemoteOnly(NewRouter(server.Client(), "", nil, fs))
	ctx := context.Background()

	data, err := f.Fetch(ctx, server.URL+"/x")
	require.NoError(err)
	require.Equal("remote", string(data))

	for _, resource := range []string{"/etc/secret", "file:///etc/secret", "etc/secret"} {
		_, err := f.Fetch(ctx, resource)
		require.ErrorIs(err, ErrLocalResource, resource)
	}

	require.True(IsRemote("https://tiles.example.com/0/0/0"))
	require.False(IsRemote("file:///tmp/0/0/0"))
}
