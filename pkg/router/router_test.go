package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stagewire/dispatch/pkg/codec"
	"github.com/stagewire/dispatch/pkg/common"
	"github.com/stagewire/dispatch/pkg/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// resolverFunc adapts a function to common.IdentityResolver.
type resolverFunc func(r *http.Request) (string, error)

func (f resolverFunc) Resolve(r *http.Request) (string, error) { return f(r) }

func decodeErrorEnvelope(t *testing.T, body string) codec.ErrorEnvelope {
	t.Helper()
	var env codec.ErrorEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		t.Fatalf("failed to decode error envelope: %v (body %q)", err, body)
	}
	return env
}

func TestRegistrationOrderPrecedence(t *testing.T) {
	var matched string
	mkHandler := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			matched = name
			w.WriteHeader(http.StatusOK)
		}
	}

	r, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		Routes: []RouteConfig{
			{Path: "/items/:id", Methods: []string{"GET"}, Handler: mkHandler("param")},
			{Path: "/items/special", Methods: []string{"GET"}, Handler: mkHandler("literal")},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/items/special", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	// The parameter route registered first wins, even though a literal
	// route also matches.
	if matched != "param" {
		t.Errorf("expected first-registered route to win, got %q", matched)
	}
}

func TestRouteParamsReachHandler(t *testing.T) {
	r, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		Routes: []RouteConfig{
			{
				Path:    "/artists/:slug/tracks/:trackID",
				Methods: []string{"GET"},
				Handler: func(w http.ResponseWriter, req *http.Request) {
					w.Write([]byte(common.Param(req, "slug") + "/" + common.Param(req, "trackID")))
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/artists/nina/tracks/7", nil))

	if rr.Body.String() != "nina/7" {
		t.Errorf("expected params nina/7, got %q", rr.Body.String())
	}
}

func TestDuplicateRouteRejected(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {}

	_, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		Routes: []RouteConfig{
			{Path: "/items/:id", Methods: []string{"GET"}, Handler: handler},
			{Path: "/items/:id", Methods: []string{"GET"}, Handler: handler},
		},
	})
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestSameTemplateDifferentMethods(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	r, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		Routes: []RouteConfig{
			{Path: "/items/:id", Methods: []string{"GET", "DELETE"}, Handler: handler},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	for _, method := range []string{"GET", "DELETE"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(method, "/items/1", nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s /items/1: expected 200, got %d", method, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("POST", "/items/1", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("POST /items/1: expected 404, got %d", rr.Code)
	}
}

func TestNotFoundDefaultAndCustom(t *testing.T) {
	r, err := NewRouter(RouterConfig{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected default 404, got %d", rr.Code)
	}

	custom, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		NotFound: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			_ = codec.WriteError(w, req, common.NotFound("no such endpoint"))
		}),
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	rr = httptest.NewRecorder()
	custom.ServeHTTP(rr, httptest.NewRequest("GET", "/nope", nil))
	env := decodeErrorEnvelope(t, rr.Body.String())
	if env.Error.Code != string(common.KindNotFound) {
		t.Errorf("expected NOT_FOUND code, got %q", env.Error.Code)
	}
}

func TestRouteTableFrozenOnceServing(t *testing.T) {
	r, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		Routes: []RouteConfig{
			{Path: "/a", Methods: []string{"GET"}, Handler: func(w http.ResponseWriter, r *http.Request) {}},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/a", nil))

	err = r.RegisterRoute(RouteConfig{
		Path:    "/b",
		Methods: []string{"GET"},
		Handler: func(w http.ResponseWriter, r *http.Request) {},
	})
	if !errors.Is(err, ErrRouterFrozen) {
		t.Errorf("expected ErrRouterFrozen, got %v", err)
	}
}

func TestPanicMapsToSingleInternalEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	r, err := NewRouter(RouterConfig{
		Logger:      logger,
		Middlewares: []common.Middleware{},
		Routes: []RouteConfig{
			{
				Path:    "/boom",
				Methods: []string{"GET"},
				Handler: func(w http.ResponseWriter, req *http.Request) {
					panic(errors.New("database exploded"))
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/boom", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	env := decodeErrorEnvelope(t, rr.Body.String())
	if env.Error.Code != string(common.KindInternal) {
		t.Errorf("expected INTERNAL_ERROR code, got %q", env.Error.Code)
	}
	// The internal cause never leaks into the response.
	if strings.Contains(rr.Body.String(), "database exploded") {
		t.Error("internal error detail leaked into the response body")
	}
	if env.Meta.TraceID == "" {
		t.Error("expected meta.traceId to be populated")
	}
	// The boundary logs the mapped fault once, at debug.
	if n := logs.FilterMessage("Mapped uncaught fault").Len(); n != 1 {
		t.Errorf("expected exactly one mapped-fault entry, got %d", n)
	}
}

func TestTaggedPanicKeepsKind(t *testing.T) {
	r, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		Routes: []RouteConfig{
			{
				Path:    "/missing",
				Methods: []string{"GET"},
				Handler: func(w http.ResponseWriter, req *http.Request) {
					panic(common.NotFound("artist not found"))
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/missing", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	env := decodeErrorEnvelope(t, rr.Body.String())
	if env.Error.Code != string(common.KindNotFound) {
		t.Errorf("expected NOT_FOUND code, got %q", env.Error.Code)
	}
	if env.Error.Message != "artist not found" {
		t.Errorf("expected tagged message to survive, got %q", env.Error.Message)
	}
}

func TestMiddlewareOrderAndShortCircuit(t *testing.T) {
	var order []string
	record := func(name string) common.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handlerCalls := 0
	r, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		Collaborators: &common.Collaborators{
			Identity: resolverFunc(func(r *http.Request) (string, error) {
				return "", errors.New("no credentials")
			}),
		},
		Middlewares: []common.Middleware{record("global")},
		Routes: []RouteConfig{
			{
				Path:        "/private",
				Methods:     []string{"GET"},
				AuthLevel:   AuthRequired,
				Middlewares: []common.Middleware{record("route")},
				Handler: func(w http.ResponseWriter, req *http.Request) {
					handlerCalls++
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/private", nil))

	// Global and route middleware ran in order; the auth gate sits after
	// them and short-circuits before the handler.
	if len(order) != 2 || order[0] != "global" || order[1] != "route" {
		t.Errorf("unexpected middleware order: %v", order)
	}
	if handlerCalls != 0 {
		t.Errorf("expected handler not to run, ran %d times", handlerCalls)
	}
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
	env := decodeErrorEnvelope(t, rr.Body.String())
	if env.Error.Code != string(common.KindUnauthenticated) {
		t.Errorf("expected AUTHENTICATION_FAILED code, got %q", env.Error.Code)
	}
}

func TestGroupPrefixAndMiddleware(t *testing.T) {
	var sawGroup bool
	groupMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sawGroup = true
			next.ServeHTTP(w, r)
		})
	}

	r, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		Groups: []GroupConfig{
			{
				PathPrefix:  "/api/v1",
				Middlewares: []common.Middleware{groupMW},
				Routes: []RouteConfig{
					{
						Path:    "/artists/:id",
						Methods: []string{"GET"},
						Handler: func(w http.ResponseWriter, req *http.Request) {
							w.Write([]byte(common.Param(req, "id")))
						},
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/artists/9", nil))

	if rr.Body.String() != "9" {
		t.Errorf("expected param capture through group prefix, got %q", rr.Body.String())
	}
	if !sawGroup {
		t.Error("expected group middleware to run")
	}
}

func TestDoubleContinuationMapsTo500(t *testing.T) {
	faulty := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(httptest.NewRecorder(), r)
			next.ServeHTTP(w, r)
		})
	}

	r, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		Routes: []RouteConfig{
			{
				Path:        "/twice",
				Methods:     []string{"GET"},
				Middlewares: []common.Middleware{faulty},
				Handler:     func(w http.ResponseWriter, req *http.Request) {},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/twice", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected double continuation to map to 500, got %d", rr.Code)
	}
}

func TestTraceIDEchoAndGeneration(t *testing.T) {
	r, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		Routes: []RouteConfig{
			{
				Path:    "/ping",
				Methods: []string{"GET"},
				Handler: func(w http.ResponseWriter, req *http.Request) {
					w.Write([]byte(common.TraceID(req)))
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(common.TraceIDHeader, "trace-abc")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Body.String() != "trace-abc" {
		t.Errorf("expected inbound trace id to be honored, got %q", rr.Body.String())
	}
	if rr.Header().Get(common.TraceIDHeader) != "trace-abc" {
		t.Errorf("expected trace id echoed in response header, got %q", rr.Header().Get(common.TraceIDHeader))
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/ping", nil))
	if rr.Body.String() == "" {
		t.Error("expected a generated trace id when none was supplied")
	}
}

func TestCORSPreflightInterceptedBeforeDispatch(t *testing.T) {
	handlerCalls := 0
	r, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		CORS:   middleware.DefaultCORSConfig(),
		Routes: []RouteConfig{
			{
				Path:    "/items",
				Methods: []string{"OPTIONS", "GET"},
				Handler: func(w http.ResponseWriter, req *http.Request) { handlerCalls++ },
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("OPTIONS", "/items", nil))

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204 preflight answer, got %d", rr.Code)
	}
	if handlerCalls != 0 {
		t.Errorf("expected preflight never to reach the handler, ran %d times", handlerCalls)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS headers on the preflight answer")
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/items", nil))
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS headers on non-preflight responses")
	}
	if handlerCalls != 1 {
		t.Errorf("expected GET to reach the handler once, ran %d times", handlerCalls)
	}
}

func TestShutdownRejectsNewRequests(t *testing.T) {
	r, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		Routes: []RouteConfig{
			{Path: "/a", Methods: []string{"GET"}, Handler: func(w http.ResponseWriter, req *http.Request) {}},
		},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/a", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after shutdown, got %d", rr.Code)
	}
	env := decodeErrorEnvelope(t, rr.Body.String())
	if env.Error.Code != string(common.KindUnavailable) {
		t.Errorf("expected SERVICE_UNAVAILABLE code, got %q", env.Error.Code)
	}
}
