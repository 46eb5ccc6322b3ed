package transform

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/domain/repository"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestClient_Transform_Success(t *testing.T) {
	var capturedURL string
	doer := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return &http.Response{
			StatusCode:    http.StatusOK,
			Body:          io.NopCloser(strings.NewReader("video-bytes")),
			Header:        http.Header{"Content-Type": []string{"video/mp4"}},
			ContentLength: 11,
		}, nil
	})

	c := newClientWithDoer(doer, ClientConfig{CDNPrefix: "https://cdn.example.com"}, nil)

	width := 640
	resp, err := c.Transform(context.Background(), Request{
		SourceURL: "https://origin.example.com/video.mp4",
		Options:   model.TransformOptions{Width: &width, Format: "mp4"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.ContentType != "video/mp4" {
		t.Errorf("expected content type video/mp4, got %q", resp.ContentType)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "video-bytes" {
		t.Errorf("unexpected body: %q", body)
	}

	if !strings.Contains(capturedURL, "/cdn-cgi/media/") {
		t.Errorf("expected transform path in url, got %q", capturedURL)
	}
	if !strings.Contains(capturedURL, "width=640") {
		t.Errorf("expected encoded width in url, got %q", capturedURL)
	}
	if !strings.HasSuffix(capturedURL, "https://origin.example.com/video.mp4") {
		t.Errorf("expected source url suffix, got %q", capturedURL)
	}
}

func TestClient_Transform_NonSuccessStatusIsUpstreamTransformError(t *testing.T) {
	doer := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Body:       io.NopCloser(strings.NewReader("upstream error")),
		}, nil
	})

	c := newClientWithDoer(doer, ClientConfig{CDNPrefix: "https://cdn.example.com"}, nil)

	_, err := c.Transform(context.Background(), Request{SourceURL: "https://origin.example.com/v.mp4"})
	if !errors.Is(err, repository.ErrUpstreamTransform) {
		t.Fatalf("expected ErrUpstreamTransform, got %v", err)
	}
}

func TestClient_Transform_DoErrorIsPropagated(t *testing.T) {
	wantErr := errors.New("connection refused")
	doer := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, wantErr
	})

	c := newClientWithDoer(doer, ClientConfig{CDNPrefix: "https://cdn.example.com"}, nil)

	_, err := c.Transform(context.Background(), Request{SourceURL: "https://origin.example.com/v.mp4"})
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped %v, got %v", wantErr, err)
	}
}

func TestClient_Transform_AppliesResolvedAuthHeader(t *testing.T) {
	var gotAuth string
	doer := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotAuth = req.Header.Get("Authorization")
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(""))}, nil
	})

	authFn := func(ref *model.AuthRef) (string, bool) {
		if ref.Name == "origin-token" {
			return "secret-value", true
		}
		return "", false
	}

	c := newClientWithDoer(doer, ClientConfig{CDNPrefix: "https://cdn.example.com"}, authFn)

	_, err := c.Transform(context.Background(), Request{
		SourceURL: "https://origin.example.com/v.mp4",
		Auth:      &model.AuthRef{Name: "origin-token"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret-value" {
		t.Errorf("expected resolved bearer header, got %q", gotAuth)
	}
}

func TestClient_Transform_NoAuthFnLeavesHeaderUnset(t *testing.T) {
	var gotAuth string
	doer := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotAuth = req.Header.Get("Authorization")
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(""))}, nil
	})

	c := newClientWithDoer(doer, ClientConfig{CDNPrefix: "https://cdn.example.com"}, nil)

	_, err := c.Transform(context.Background(), Request{
		SourceURL: "https://origin.example.com/v.mp4",
		Auth:      &model.AuthRef{Name: "origin-token"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("expected no auth header without a resolver, got %q", gotAuth)
	}
}

func TestClient_HeadSize_ReturnsContentLength(t *testing.T) {
	doer := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodHead {
			t.Errorf("expected HEAD method, got %s", req.Method)
		}
		return &http.Response{
			StatusCode:    http.StatusOK,
			Body:          io.NopCloser(strings.NewReader("")),
			ContentLength: 300 * 1024 * 1024,
		}, nil
	})

	c := newClientWithDoer(doer, ClientConfig{CDNPrefix: "https://cdn.example.com", HeadTimeout: 0}, nil)

	size, err := c.HeadSize(context.Background(), "https://origin.example.com/big.mp4", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 300*1024*1024 {
		t.Errorf("expected 300MiB, got %d", size)
	}
}

func TestClient_HeadSize_NonSuccessStatusIsUpstreamTransformError(t *testing.T) {
	doer := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(""))}, nil
	})

	c := newClientWithDoer(doer, ClientConfig{CDNPrefix: "https://cdn.example.com"}, nil)

	_, err := c.HeadSize(context.Background(), "https://origin.example.com/missing.mp4", nil)
	if !errors.Is(err, repository.ErrUpstreamTransform) {
		t.Fatalf("expected ErrUpstreamTransform, got %v", err)
	}
}

func TestClient_Fetch_Success(t *testing.T) {
	var capturedURL string
	var capturedAuth string
	doer := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedAuth = req.Header.Get("Authorization")
		return &http.Response{
			StatusCode:    http.StatusOK,
			Body:          io.NopCloser(strings.NewReader("source-bytes")),
			Header:        http.Header{"Content-Type": []string{"video/mp4"}},
			ContentLength: 12,
		}, nil
	})

	authFn := func(ref *model.AuthRef) (string, bool) { return "token-123", true }
	c := newClientWithDoer(doer, ClientConfig{CDNPrefix: "https://cdn.example.com"}, authFn)

	resp, err := c.Fetch(context.Background(), "https://origin.example.com/video.mp4", &model.AuthRef{Name: "origin-auth"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if capturedURL != "https://origin.example.com/video.mp4" {
		t.Errorf("expected source url unchanged, got %q", capturedURL)
	}
	if capturedAuth != "Bearer token-123" {
		t.Errorf("expected resolved auth header, got %q", capturedAuth)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "source-bytes" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestClient_Fetch_NonSuccessStatusIsUpstreamTransformError(t *testing.T) {
	doer := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusForbidden, Body: io.NopCloser(strings.NewReader(""))}, nil
	})

	c := newClientWithDoer(doer, ClientConfig{CDNPrefix: "https://cdn.example.com"}, nil)

	_, err := c.Fetch(context.Background(), "https://origin.example.com/v.mp4", nil)
	if !errors.Is(err, repository.ErrUpstreamTransform) {
		t.Fatalf("expected ErrUpstreamTransform, got %v", err)
	}
}

func TestEncodeOptions(t *testing.T) {
	width, height := 320, 240
	encoded := encodeOptions(model.TransformOptions{
		Width:  &width,
		Height: &height,
		Format: "webm",
		Audio:  true,
	})

	for _, want := range []string{"width=320", "height=240", "format=webm", "audio=true"} {
		if !strings.Contains(encoded, want) {
			t.Errorf("expected encoded options to contain %q, got %q", want, encoded)
		}
	}
}

func TestEncodeOptions_EmptyOptionsYieldsPlaceholder(t *testing.T) {
	if got := encodeOptions(model.TransformOptions{}); got != "_" {
		t.Errorf("expected placeholder for empty options, got %q", got)
	}
}
