package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stagewire/dispatch/pkg/codec"
	"github.com/stagewire/dispatch/pkg/common"
	"go.uber.org/zap"
)

// ErrorMapper is the outermost layer of every chain. It recovers anything
// that escapes the chain and maps it to exactly one error envelope: tagged
// errors keep their taxonomy kind and message, everything else becomes a
// 500 with a generic message. Expected failures (auth, rate limit) never
// reach this boundary; the middleware that detects them short-circuits
// with a shaped response instead of panicking.
//
// The mapper logs at debug level only; the Logging middleware owns the
// error-level entry for the request.
func ErrorMapper(logger *zap.Logger) common.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				derr := faultToError(rec)
				logger.Debug("Mapped uncaught fault",
					zap.String("trace_id", common.TraceID(r)),
					zap.String("kind", string(derr.Kind)),
					zap.String("error", fmt.Sprint(rec)),
				)
				_ = codec.WriteError(w, r, derr)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// faultToError normalizes a recovered value into a tagged error. The
// internal cause is never exposed to clients.
func faultToError(rec any) *common.Error {
	switch v := rec.(type) {
	case *common.Error:
		return v
	case error:
		var derr *common.Error
		if errors.As(v, &derr) {
			return derr
		}
		return common.Internal("internal server error", v)
	default:
		return common.Internal("internal server error", fmt.Errorf("%v", rec))
	}
}
