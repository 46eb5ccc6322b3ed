// Package transform is the HTTP client for the external upstream media
// transformation service (§1, §6: "GET {cdn-prefix}/cdn-cgi/media/
// {encoded-options}/{sourceUrl}"). The pixel-level transformation itself is
// out of scope — this package only knows how to ask for it and relay the
// response body upstream.
//
// Grounded on the teacher's internal/transcoder package: same Config/
// interface/constructor shape (FFmpegConfig/FFmpegTranscoder ->
// ClientConfig/Client), generalized from an exec.Command subprocess call to
// an http.Client request, since the transform here runs on a remote CDN
// rather than a local ffmpeg binary.
package transform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/domain/repository"
)

// ClientConfig holds configuration for the transform HTTP client.
type ClientConfig struct {
	// CDNPrefix is the scheme+host the transform path is joined to, e.g.
	// "https://cdn.example.com".
	CDNPrefix string
	// Timeout bounds a single transform request (§5: transform requests are
	// not subject to the 5s HEAD timeout; they run as long as the upstream
	// takes, bounded generously since the response streams back to the
	// client as it arrives).
	Timeout time.Duration
	// HeadTimeout bounds the size pre-check request (§4.I step 8, 5s).
	HeadTimeout time.Duration
}

// DefaultClientConfig returns production-ready defaults.
func DefaultClientConfig(cdnPrefix string) ClientConfig {
	return ClientConfig{
		CDNPrefix:   cdnPrefix,
		Timeout:     60 * time.Second,
		HeadTimeout: 5 * time.Second,
	}
}

// Request bundles what the transform call needs to build the upstream URL
// and carry auth.
type Request struct {
	SourceURL string // already-resolved source URL or object key joined upstream by the caller
	Options   model.TransformOptions
	Auth      *model.AuthRef
}

// Response is the transform service's reply, ready to be read to EOF or
// streamed directly to the requester.
type Response struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 if unknown (chunked transfer)
}

// httpDoer abstracts *http.Client for testability.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the upstream transform service over HTTP.
type Client struct {
	http   httpDoer
	cfg    ClientConfig
	authFn func(*model.AuthRef) (string, bool)
}

// NewClient creates a Client. authFn, if non-nil, resolves an AuthRef to a
// bearer token; this package never holds credentials itself (model.AuthRef
// only threads the reference through).
func NewClient(cfg ClientConfig, authFn func(*model.AuthRef) (string, bool)) *Client {
	if cfg.Timeout <= 0 {
		cfg = DefaultClientConfig(cfg.CDNPrefix)
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		authFn: authFn,
	}
}

// newClientWithDoer is used for dependency injection in tests.
func newClientWithDoer(doer httpDoer, cfg ClientConfig, authFn func(*model.AuthRef) (string, bool)) *Client {
	return &Client{http: doer, cfg: cfg, authFn: authFn}
}

// Transform invokes the upstream transform service and returns its response
// body unread. A non-2xx response is classified as repository.ErrUpstreamTransform.
func (c *Client) Transform(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.buildRequest(ctx, http.MethodGet, req, c.cfg.Timeout)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transform request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", repository.ErrUpstreamTransform, resp.StatusCode)
	}

	return &Response{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// Fetch issues a plain GET against sourceURL, applying auth the same way
// Transform does. Used for the oversized-asset direct-stream bypass (§4.I
// step 8) and for Remote/Fallback source fetches outside the transform
// service, where the caller wants the source bytes unmodified.
func (c *Client) Fetch(ctx context.Context, sourceURL string, auth *model.AuthRef) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	c.applyAuth(req, auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: fetch status %d", repository.ErrUpstreamTransform, resp.StatusCode)
	}
	return &Response{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// HeadSize pre-checks a source's size with a HEAD request (§4.I step 8),
// used ahead of the oversized-asset direct-stream bypass decision.
func (c *Client) HeadSize(ctx context.Context, sourceURL string, auth *model.AuthRef) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build head request: %w", err)
	}
	c.applyAuth(req, auth)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.HeadTimeout)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("head request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: head status %d", repository.ErrUpstreamTransform, resp.StatusCode)
	}

	return resp.ContentLength, nil
}

func (c *Client) buildRequest(ctx context.Context, method string, req Request, timeout time.Duration) (*http.Request, error) {
	u, err := c.buildURL(req)
	if err != nil {
		return nil, fmt.Errorf("build transform url: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build transform request: %w", err)
	}
	c.applyAuth(httpReq, req.Auth)
	return httpReq, nil
}

func (c *Client) applyAuth(req *http.Request, auth *model.AuthRef) {
	if auth == nil || c.authFn == nil {
		return
	}
	if token, ok := c.authFn(auth); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// buildURL assembles "{cdn-prefix}/cdn-cgi/media/{encoded-options}/{sourceUrl}".
func (c *Client) buildURL(req Request) (string, error) {
	encoded := encodeOptions(req.Options)
	return fmt.Sprintf("%s/cdn-cgi/media/%s/%s", strings.TrimRight(c.cfg.CDNPrefix, "/"), encoded, req.SourceURL), nil
}

// encodeOptions renders TransformOptions as a comma-separated key=value
// option string, the convention this family of media-transform CDN paths
// uses. Zero-value fields are omitted so the encoded form stays minimal.
func encodeOptions(o model.TransformOptions) string {
	pairs := map[string]string{}
	if o.Mode != "" {
		pairs["mode"] = string(o.Mode)
	}
	if o.Width != nil {
		pairs["width"] = strconv.Itoa(*o.Width)
	}
	if o.Height != nil {
		pairs["height"] = strconv.Itoa(*o.Height)
	}
	if o.Format != "" {
		pairs["format"] = o.Format
	}
	if o.Quality != "" {
		pairs["quality"] = string(o.Quality)
	}
	if o.Compression != "" {
		pairs["compression"] = string(o.Compression)
	}
	if o.Fit != "" {
		pairs["fit"] = string(o.Fit)
	}
	if o.Time != "" {
		pairs["time"] = o.Time
	}
	if o.Duration != "" {
		pairs["duration"] = o.Duration
	}
	if o.Columns != 0 {
		pairs["columns"] = strconv.Itoa(o.Columns)
	}
	if o.Rows != 0 {
		pairs["rows"] = strconv.Itoa(o.Rows)
	}
	if o.Interval != "" {
		pairs["interval"] = o.Interval
	}
	if o.Audio {
		pairs["audio"] = "true"
	}
	if o.Loop {
		pairs["loop"] = "true"
	}
	if o.Autoplay {
		pairs["autoplay"] = "true"
	}
	if o.Muted {
		pairs["muted"] = "true"
	}
	if o.Preload != "" {
		pairs["preload"] = string(o.Preload)
	}
	if o.Version > 0 {
		pairs["version"] = strconv.Itoa(o.Version)
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(pairs[k]))
	}
	if len(parts) == 0 {
		return "_"
	}
	return strings.Join(parts, ",")
}
