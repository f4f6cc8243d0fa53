package common

import (
	"fmt"
	"net/http"
)

// MiddlewareChain represents an ordered chain of middleware. The first
// element is the outermost layer; the last element runs closest to the
// terminal handler.
type MiddlewareChain []Middleware

// NewMiddlewareChain creates a new middleware chain.
func NewMiddlewareChain(middlewares ...Middleware) MiddlewareChain {
	return middlewares
}

// Append adds middleware to the end of the chain.
func (c MiddlewareChain) Append(middlewares ...Middleware) MiddlewareChain {
	return append(c, middlewares...)
}

// Prepend adds middleware to the beginning of the chain.
func (c MiddlewareChain) Prepend(middlewares ...Middleware) MiddlewareChain {
	result := make(MiddlewareChain, len(middlewares)+len(c))
	copy(result, middlewares)
	copy(result[len(middlewares):], c)
	return result
}

// Then applies the middleware chain to a terminal handler. Each layer's
// continuation is guarded: invoking it a second time within one request is
// a programming fault and panics instead of running the rest of the chain
// again. The panic propagates like any other and is mapped to a response at
// the outermost boundary.
func (c MiddlewareChain) Then(h http.Handler) http.Handler {
	for i := len(c) - 1; i >= 0; i-- {
		h = c[i](guardContinuation(i, h))
	}
	return h
}

// guardContinuation wraps the continuation handed to chain layer `layer`.
// The per-request call record lives on the RequestContext; requests that
// did not pass through the router are not guarded.
func guardContinuation(layer int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rc := Ctx(r); rc != nil && !rc.markNext(layer) {
			panic(fmt.Sprintf("middleware chain: layer %d invoked its continuation twice", layer))
		}
		next.ServeHTTP(w, r)
	})
}
