// Package handler wires HTTP routes to their implementations. proxy.go
// replaces the teacher's video.go: instead of a CRUD-style VideoHandler
// backed by usecase.VideoService, every non-health route is a single
// catch-all delegating straight to internal/pipeline.Pipeline, which is
// where §4.I's 14-step request pipeline actually lives.
package handler

import "net/http"

// ProxyHandler adapts pipeline.Pipeline to net/http.
type ProxyHandler struct {
	pipeline pipelineServer
}

// pipelineServer is the subset of *pipeline.Pipeline this handler needs,
// kept as a local interface so handler tests can supply a stub rather than
// standing up the full pipeline's dependency graph.
type pipelineServer interface {
	Serve(w http.ResponseWriter, r *http.Request)
}

// NewProxyHandler wraps a pipeline for HTTP routing.
func NewProxyHandler(p pipelineServer) *ProxyHandler {
	return &ProxyHandler{pipeline: p}
}

// ServeHTTP delegates every request to the pipeline. Origin/source
// resolution (§4.A) decides per-path behavior, not the router, so a single
// catch-all route is sufficient here.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Serve(w, r)
}
