package router

import (
	"errors"
	"net/http"

	"github.com/stagewire/dispatch/pkg/codec"
	"github.com/stagewire/dispatch/pkg/common"
	"github.com/stagewire/dispatch/pkg/middleware"
)

// JSONRouteConfig defines a route whose request body is decoded into Req
// and whose result is wrapped in a success envelope. Handlers return data
// or an error; they never touch the response writer.
type JSONRouteConfig[Req any, Resp any] struct {
	Path        string
	Methods     []string
	AuthLevel   AuthLevel
	RateLimit   *middleware.RateLimitConfig
	Handler     func(r *http.Request, data Req) (Resp, error)
	Middlewares []common.Middleware
}

// HandleJSON registers a typed JSON route. The body is decoded only for
// methods that carry one; a malformed body yields a validation envelope
// before the handler runs. A tagged error from the handler keeps its
// taxonomy kind; any other error becomes a 500 with a generic message.
//
// This is a free function rather than a method because methods cannot
// introduce their own type parameters.
func HandleJSON[Req any, Resp any](r *Router, route JSONRouteConfig[Req, Resp]) error {
	return r.RegisterRoute(RouteConfig{
		Path:        route.Path,
		Methods:     route.Methods,
		AuthLevel:   route.AuthLevel,
		RateLimit:   route.RateLimit,
		Middlewares: route.Middlewares,
		Handler: func(w http.ResponseWriter, req *http.Request) {
			var data Req
			if hasBody(req) {
				var err error
				data, err = codec.Decode[Req](req)
				if err != nil {
					_ = codec.WriteError(w, req, common.Validation("invalid request body", ""))
					return
				}
			}

			resp, err := route.Handler(req, data)
			if err != nil {
				var derr *common.Error
				if !errors.As(err, &derr) {
					derr = common.Internal("internal server error", err)
				}
				_ = codec.WriteError(w, req, derr)
				return
			}

			_ = codec.WriteSuccess(w, req, http.StatusOK, resp)
		},
	})
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
		return false
	}
	return r.Body != nil && r.Body != http.NoBody
}
