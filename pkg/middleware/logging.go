package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stagewire/dispatch/pkg/common"
	"go.uber.org/zap"
)

// Logging is a global middleware that records one structured entry per
// request after the chain settles, whether it returned normally or
// unwound with a panic. It is purely observational: a recovered panic is
// logged and immediately re-raised for the boundary to map.
func Logging(logger *zap.Logger) common.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &statusWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			defer func() {
				duration := time.Since(start)
				rec := recover()

				status := rw.statusCode
				if rec != nil {
					status = statusFromFault(rec)
				}

				fields := []zap.Field{
					zap.String("trace_id", common.TraceID(r)),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("query", r.URL.RawQuery),
					zap.Int("status", status),
					zap.Duration("duration", duration),
				}
				if subject, ok := common.SubjectID(r); ok {
					fields = append(fields, zap.String("subject_id", subject))
				}

				if rec != nil {
					fields = append(fields, zap.String("error", fmt.Sprint(rec)))
					logger.Error("Request failed", fields...)
					panic(rec)
				}

				switch {
				case status >= 500:
					logger.Error("Server error", fields...)
				case status >= 400:
					logger.Warn("Client error", fields...)
				case duration > 1*time.Second:
					logger.Warn("Slow request", fields...)
				default:
					logger.Info("Request", fields...)
				}
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// statusFromFault predicts the status the boundary will map a recovered
// value to, so the log entry and the eventual response agree.
func statusFromFault(rec any) int {
	if err, ok := rec.(error); ok {
		var derr *common.Error
		if errors.As(err, &derr) {
			return derr.Status()
		}
	}
	return http.StatusInternalServerError
}

// statusWriter is a wrapper around http.ResponseWriter that captures the
// status code.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code and calls the underlying
// ResponseWriter.WriteHeader.
func (rw *statusWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write calls the underlying ResponseWriter.Write.
func (rw *statusWriter) Write(b []byte) (int, error) {
	return rw.ResponseWriter.Write(b)
}

// Flush calls the underlying ResponseWriter.Flush if it implements
// http.Flusher.
func (rw *statusWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
