// Package router provides the request dispatch core: a path-pattern route
// table with registration-order precedence, middleware chain assembly, the
// per-request context, and the error-mapping boundary.
package router

import (
	"net/http"

	"github.com/stagewire/dispatch/pkg/common"
	"github.com/stagewire/dispatch/pkg/middleware"
	"go.uber.org/zap"
)

// AuthLevel defines the authentication level for a route.
type AuthLevel int

const (
	// NoAuth indicates that no authentication is attempted for the
	// route.
	NoAuth AuthLevel = iota

	// AuthOptional indicates that credentials are resolved and the
	// subject recorded when present, but the request proceeds either
	// way.
	AuthOptional

	// AuthRequired indicates that the request is rejected with a 401
	// envelope unless a subject is resolved.
	AuthRequired
)

// RouterConfig defines the global configuration for the router. It is
// assembled once at process start; the router built from it is read-only
// data for the remainder of the process lifetime.
type RouterConfig struct {
	// Logger for all router operations. Defaults to a production zap
	// logger.
	Logger *zap.Logger

	// Collaborators are the external services handlers and middleware
	// reach through the request context. The identity resolver and the
	// counter store are required when any route uses AuthLevel or
	// RateLimit respectively.
	Collaborators *common.Collaborators

	// CORS, when set, makes the router answer OPTIONS preflights before
	// dispatch and decorate every other response with the same headers.
	CORS *middleware.CORSConfig

	// NotFound produces the response when no route matches. The router
	// itself never decides what a missing route looks like; this
	// defaults to http.NotFoundHandler.
	NotFound http.Handler

	// Middlewares are applied to every route, in order, before any
	// group or route middleware.
	Middlewares []common.Middleware

	// Groups are routes sharing a path prefix and middleware.
	Groups []GroupConfig

	// Routes are the top-level routes.
	Routes []RouteConfig
}

// GroupConfig defines a group of routes with a common path prefix, for
// organizing routes and sharing middleware across them.
type GroupConfig struct {
	PathPrefix  string
	Middlewares []common.Middleware
	Routes      []RouteConfig
}

// RouteConfig defines one route. Registration order is match-priority
// order: the first structurally matching entry with the right method
// wins, regardless of specificity.
type RouteConfig struct {
	// Path is the route template (prefixed with the group's path prefix
	// when registered through a group).
	Path string

	// Methods are the HTTP methods this route handles.
	Methods []string

	// AuthLevel selects the authentication gate for this route.
	AuthLevel AuthLevel

	// RateLimit, when set, enforces a per-subject quota on this route.
	// Rate limiting runs after authentication because it needs a
	// resolved subject.
	RateLimit *middleware.RateLimitConfig

	// Handler is the terminal handler.
	Handler http.HandlerFunc

	// Middlewares are applied to this route only, after the global and
	// group middleware.
	Middlewares []common.Middleware
}
