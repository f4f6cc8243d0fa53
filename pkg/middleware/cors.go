// Package middleware provides the HTTP middleware components of the
// dispatch core: authentication, rate limiting, request logging, CORS, and
// Prometheus metrics.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds the fixed cross-origin policy. The router answers
// preflight requests with it before any route is consulted, and decorates
// every other response with the same headers before the chain runs.
type CORSConfig struct {
	Origins []string
	Methods []string
	Headers []string

	// MaxAgeSeconds is how long browsers may cache the preflight answer.
	MaxAgeSeconds int
}

// DefaultCORSConfig allows any origin with the common methods and headers.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Origins:       []string{"*"},
		Methods:       []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		Headers:       []string{"Content-Type", "Authorization", "X-Trace-Id"},
		MaxAgeSeconds: 86400,
	}
}

// Apply sets the CORS headers on h.
func (c *CORSConfig) Apply(h http.Header) {
	if len(c.Origins) > 0 {
		h.Set("Access-Control-Allow-Origin", strings.Join(c.Origins, ", "))
	}
	if len(c.Methods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(c.Methods, ", "))
	}
	if len(c.Headers) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(c.Headers, ", "))
	}
}

// WritePreflight answers an OPTIONS preflight with the fixed policy.
func (c *CORSConfig) WritePreflight(w http.ResponseWriter) {
	c.Apply(w.Header())
	if c.MaxAgeSeconds > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAgeSeconds))
	}
	w.WriteHeader(http.StatusNoContent)
}
