package tile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DefaultUserAgent is sent on every tile request unless overridden
const DefaultUserAgent = "retile/1.0.0"

// Fetcher retrieves the bytes of a tile resource
type Fetcher interface {
	Fetch(ctx context.Context, resource string) ([]byte, error)
}

// Sink stores the bytes of a tile resource. contentType is the MIME type of
// data; empty means application/octet-stream.
type Sink interface {
	Write(ctx context.Context, resource string, data []byte, contentType string) error
}

// NewHTTPClient returns a client with the given request timeout. It is meant
// to be built once and shared by every fetcher and sink of a run.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// HTTPFetcher downloads tiles over HTTP(S)
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
}

// NewHTTPFetcher creates a fetcher using the shared client
func NewHTTPFetcher(client *http.Client, userAgent string, headers map[string]string) *HTTPFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{
		client:    client,
		userAgent: userAgent,
		headers:   headers,
	}
}

// Fetch downloads the resource at url. Any status other than 200 is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	f.setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return io.ReadAll(resp.Body)
}

func (f *HTTPFetcher) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}
}

// HTTPSink uploads tiles with PUT requests. The embedded fetcher shares its
// client and headers.
type HTTPSink struct {
	HTTPFetcher
}

// NewHTTPSink creates a sink using the shared client
func NewHTTPSink(client *http.Client, userAgent string, headers map[string]string) *HTTPSink {
	return &HTTPSink{HTTPFetcher: *NewHTTPFetcher(client, userAgent, headers)}
}

// Write PUTs data to url. Any 2xx status counts as success.
func (s *HTTPSink) Write(ctx context.Context, url string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return nil
}

// FSFetcher reads tiles from a filesystem. Resources are plain paths or
// file:// URIs.
type FSFetcher struct {
	fs afero.Fs
}

// NewFSFetcher creates a filesystem fetcher; nil means the OS filesystem
func NewFSFetcher(fs afero.Fs) *FSFetcher {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FSFetcher{fs: fs}
}

// Fetch reads the whole file
func (f *FSFetcher) Fetch(_ context.Context, resource string) ([]byte, error) {
	return afero.ReadFile(f.fs, localPath(resource))
}

// FSSink writes tiles to a filesystem, creating parent directories. It can
// also read back what it wrote.
type FSSink struct {
	FSFetcher
}

// NewFSSink creates a filesystem sink; nil means the OS filesystem
func NewFSSink(fs afero.Fs) *FSSink {
	return &FSSink{FSFetcher: *NewFSFetcher(fs)}
}

// Write replaces the file with data. The content type is not stored.
func (s *FSSink) Write(_ context.Context, resource string, data []byte, _ string) error {
	path := localPath(resource)
	if dir := filepath.Dir(path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(s.fs, path, data, 0o644)
}

// Router picks the HTTP or filesystem implementation by resource scheme
type Router struct {
	HTTP *HTTPSink
	FS   *FSSink
}

// NewRouter wires HTTP and filesystem access behind one Fetcher and Sink
func NewRouter(client *http.Client, userAgent string, headers map[string]string, fs afero.Fs) *Router {
	return &Router{
		HTTP: NewHTTPSink(client, userAgent, headers),
		FS:   NewFSSink(fs),
	}
}

// Fetch implements Fetcher
func (r *Router) Fetch(ctx context.Context, resource string) ([]byte, error) {
	if isHTTP(resource) {
		return r.HTTP.Fetch(ctx, resource)
	}
	return r.FS.Fetch(ctx, resource)
}

// Write implements Sink
func (r *Router) Write(ctx context.Context, resource string, data []byte, contentType string) error {
	if isHTTP(resource) {
		return r.HTTP.Write(ctx, resource, data, contentType)
	}
	return r.FS.Write(ctx, resource, data, contentType)
}

func isHTTP(resource string) bool {
	return strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://")
}

// ErrLocalResource is returned by a RemoteOnly fetcher for non-HTTP resources
var ErrLocalResource = errors.New("only http and https resources are allowed")

// IsRemote reports whether the resource is an http or https URL
func IsRemote(resource string) bool {
	return isHTTP(resource)
}

type remoteOnly struct {
	f Fetcher
}

// RemoteOnly wraps f so that filesystem paths and file:// URIs are refused
func RemoteOnly(f Fetcher) Fetcher {
	return remoteOnly{f: f}
}

func (r remoteOnly) Fetch(ctx context.Context, resource string) ([]byte, error) {
	if !isHTTP(resource) {
		return nil, fmt.Errorf("%w: %q", ErrLocalResource, resource)
	}
	return r.f.Fetch(ctx, resource)
}

func localPath(resource string) string {
	return strings.TrimPrefix(resource, "file://")
}
