package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stagewire/dispatch/pkg/codec"
	"github.com/stagewire/dispatch/pkg/common"
	"github.com/stagewire/dispatch/pkg/middleware"
	"github.com/stagewire/dispatch/pkg/store"
	"go.uber.org/zap"
)

// ErrRouterFrozen is returned when a route is registered after the router
// has started serving requests. The table is fixed at startup; handlers
// never mutate it.
var ErrRouterFrozen = fmt.Errorf("router: route table is frozen once serving has started")

// routeEntry is one compiled row of the route table.
type routeEntry struct {
	method  string
	matcher *PathMatcher
	handler http.Handler
}

// Router is the dispatch core. It holds the compiled route table in
// registration order, assembles each route's middleware chain once at
// registration, and resolves each request to the first structurally
// matching entry.
type Router struct {
	config   RouterConfig
	logger   *zap.Logger
	notFound http.Handler

	// table holds routes in registration order; order is precedence.
	table []*routeEntry

	// index detects duplicate (method, template) registrations.
	index map[string]bool

	// serving flips once the first request arrives and freezes the table.
	serving atomic.Bool

	wg           sync.WaitGroup
	shutdownMu   sync.RWMutex
	shuttingDown bool
}

// NewRouter creates a router from the configuration, registering every
// group and route. Registration order across the config is precedence
// order: groups first, in order, then the top-level routes.
func NewRouter(config RouterConfig) (*Router, error) {
	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			logger = zap.NewNop()
		}
	}

	notFound := config.NotFound
	if notFound == nil {
		notFound = http.NotFoundHandler()
	}

	r := &Router{
		config:   config,
		logger:   logger,
		notFound: notFound,
		index:    make(map[string]bool),
	}

	for _, group := range config.Groups {
		for _, route := range group.Routes {
			prefixed := route
			prefixed.Path = group.PathPrefix + route.Path
			prefixed.Middlewares = append(append([]common.Middleware{}, group.Middlewares...), route.Middlewares...)
			if err := r.RegisterRoute(prefixed); err != nil {
				return nil, err
			}
		}
	}
	for _, route := range config.Routes {
		if err := r.RegisterRoute(route); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// RegisterRoute compiles and appends one route. It fails on an invalid
// template, a duplicate (method, template) pair, or once the router has
// started serving.
func (r *Router) RegisterRoute(route RouteConfig) error {
	if r.serving.Load() {
		return ErrRouterFrozen
	}
	if len(route.Methods) == 0 {
		return fmt.Errorf("route %q: at least one method is required", route.Path)
	}
	if route.Handler == nil {
		return fmt.Errorf("route %q: handler is required", route.Path)
	}
	if route.AuthLevel != NoAuth && (r.config.Collaborators == nil || r.config.Collaborators.Identity == nil) {
		return fmt.Errorf("route %q: auth level requires an identity resolver", route.Path)
	}

	matcher, err := CompilePattern(route.Path)
	if err != nil {
		return err
	}

	handler := r.wrapHandler(route)
	for _, method := range route.Methods {
		method = strings.ToUpper(method)
		key := method + " " + matcher.Template()
		if r.index[key] {
			return fmt.Errorf("route %s %q is already registered", method, route.Path)
		}
		r.index[key] = true
		r.table = append(r.table, &routeEntry{
			method:  method,
			matcher: matcher,
			handler: handler,
		})
	}

	return nil
}

// wrapHandler assembles the route's chain. From the outside in: the error
// mapper, the global middleware, the route (and group) middleware, the
// auth gate, and the rate limiter. The limiter runs after auth because it
// keys quotas on the resolved subject.
func (r *Router) wrapHandler(route RouteConfig) http.Handler {
	chain := common.NewMiddlewareChain(r.config.Middlewares...).
		Append(route.Middlewares...)

	switch route.AuthLevel {
	case AuthRequired:
		chain = chain.Append(middleware.RequireAuth(r.config.Collaborators.Identity, r.logger))
	case AuthOptional:
		chain = chain.Append(middleware.OptionalAuth(r.config.Collaborators.Identity, r.logger))
	}

	if route.RateLimit != nil {
		var counters store.CounterStore
		if r.config.Collaborators != nil {
			counters = r.config.Collaborators.Counters
		}
		chain = chain.Append(middleware.RateLimit(route.RateLimit, counters, r.logger))
	}

	chain = chain.Prepend(ErrorMapper(r.logger))
	return chain.Then(http.Handler(route.Handler))
}

// Dispatch resolves a method and path against the route table: a linear
// scan in registration order, first structural match with the right
// method wins.
func (r *Router) Dispatch(method, path string) (http.Handler, map[string]string, bool) {
	for _, entry := range r.table {
		if entry.method != method {
			continue
		}
		if params, ok := entry.matcher.Match(path); ok {
			return entry.handler, params, true
		}
	}
	return nil, nil, false
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.serving.Store(true)

	r.shutdownMu.RLock()
	if r.shuttingDown {
		r.shutdownMu.RUnlock()
		w.Header().Set("Retry-After", "5")
		_ = codec.WriteError(w, req, common.Unavailable("server is shutting down"))
		return
	}
	r.wg.Add(1)
	r.shutdownMu.RUnlock()
	defer r.wg.Done()

	if cors := r.config.CORS; cors != nil {
		if req.Method == http.MethodOptions {
			cors.WritePreflight(w)
			return
		}
		cors.Apply(w.Header())
	}

	traceID := req.Header.Get(common.TraceIDHeader)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	w.Header().Set(common.TraceIDHeader, traceID)

	rc := common.NewRequestContext(req, r.config.Collaborators, traceID)
	req = common.WithRequestContext(req, rc)
	rc.Request = req

	handler, params, ok := r.Dispatch(req.Method, req.URL.Path)
	if !ok {
		r.notFound.ServeHTTP(w, req)
		return
	}

	rc.Params = params
	handler.ServeHTTP(w, req)
}

// Shutdown stops accepting new requests and waits for in-flight ones to
// drain, or for the context to expire.
func (r *Router) Shutdown(ctx context.Context) error {
	r.shutdownMu.Lock()
	r.shuttingDown = true
	r.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
