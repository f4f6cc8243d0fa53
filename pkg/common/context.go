package common

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// TraceIDHeader is the header carrying the request trace identifier, both
// inbound (honored when present) and outbound (always echoed).
const TraceIDHeader = "X-Trace-Id"

// RequestContext carries the per-request state the dispatch core
// accumulates as a request moves through the chain: the matched route
// parameters, the trace identifier, the resolved subject, and the
// collaborator bundle. One instance exists per request; middleware and
// handlers reach it through the request's context.
type RequestContext struct {
	// Request is the request this context belongs to, after the context
	// value was attached.
	Request *http.Request

	// Collaborators is the router's collaborator bundle.
	Collaborators *Collaborators

	// URL is the parsed request URL.
	URL *url.URL

	// Params holds the parameters extracted by the matched route
	// template. Nil until dispatch selects a route; nil for templates
	// without captures.
	Params map[string]string

	// TraceID is the request's trace identifier.
	TraceID string

	// SubjectID is the authenticated subject, set by the auth gate.
	// Empty while unresolved.
	SubjectID string

	// StartedAt is when the router accepted the request.
	StartedAt time.Time

	// nextCalls records which chain layers have invoked their
	// continuation, to detect a layer calling it twice.
	nextCalls map[int]bool
}

// NewRequestContext creates the context for one inbound request.
func NewRequestContext(r *http.Request, collab *Collaborators, traceID string) *RequestContext {
	return &RequestContext{
		Request:       r,
		Collaborators: collab,
		URL:           r.URL,
		TraceID:       traceID,
		StartedAt:     time.Now(),
		nextCalls:     make(map[int]bool),
	}
}

// markNext records that chain layer `layer` invoked its continuation.
// It returns false when the layer had already done so for this request.
func (rc *RequestContext) markNext(layer int) bool {
	if rc.nextCalls[layer] {
		return false
	}
	rc.nextCalls[layer] = true
	return true
}

type contextKey struct{}

var requestContextKey = contextKey{}

// WithRequestContext returns a copy of r carrying rc in its context.
func WithRequestContext(r *http.Request, rc *RequestContext) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestContextKey, rc))
}

// Ctx retrieves the request context, or nil for requests that did not
// pass through the router.
func Ctx(r *http.Request) *RequestContext {
	rc, _ := r.Context().Value(requestContextKey).(*RequestContext)
	return rc
}

// Param returns the named route parameter, or "" when absent.
func Param(r *http.Request, name string) string {
	if rc := Ctx(r); rc != nil {
		return rc.Params[name]
	}
	return ""
}

// TraceID returns the request's trace identifier, or "" for requests that
// did not pass through the router.
func TraceID(r *http.Request) string {
	if rc := Ctx(r); rc != nil {
		return rc.TraceID
	}
	return ""
}

// SubjectID returns the authenticated subject and whether one was
// resolved.
func SubjectID(r *http.Request) (string, bool) {
	if rc := Ctx(r); rc != nil && rc.SubjectID != "" {
		return rc.SubjectID, true
	}
	return "", false
}

// Collab returns the collaborator bundle, or nil for requests that did
// not pass through the router.
func Collab(r *http.Request) *Collaborators {
	if rc := Ctx(r); rc != nil {
		return rc.Collaborators
	}
	return nil
}
