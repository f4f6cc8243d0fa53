// Package common provides the shared types of the dispatch core: the
// middleware shape, the middleware chain, the per-request context, the
// error taxonomy, and the external collaborator interfaces.
package common

import (
	"net/http"
)

// Middleware is a function that wraps an http.Handler. Calling
// next.ServeHTTP is the continuation: a middleware either invokes it
// exactly once, or writes its own response and returns without invoking it
// (a short-circuit). Middleware can be chained together to create a
// pipeline of request processing.
type Middleware func(http.Handler) http.Handler
