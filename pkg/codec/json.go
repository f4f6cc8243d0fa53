// Package codec provides the response envelope encoding used by the
// dispatch core. Every response is either a success envelope wrapping the
// handler's data or an error envelope carrying a taxonomy code; both carry
// a meta block with the timestamp, the envelope version, and the trace id.
package codec

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/stagewire/dispatch/pkg/common"
)

// Version identifies the envelope schema carried in the meta block.
const Version = "1"

// Meta is the envelope metadata block.
type Meta struct {
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	TraceID   string `json:"traceId"`
}

// SuccessEnvelope is the shape of every successful response.
type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
	Meta    Meta `json:"meta"`
}

// ErrorBody carries the taxonomy code, a human-readable message, and the
// optional offending field name.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorEnvelope is the shape of every error response.
type ErrorEnvelope struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
	Meta    Meta      `json:"meta"`
}

func metaFor(r *http.Request) Meta {
	return Meta{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
		TraceID:   common.TraceID(r),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// WriteSuccess writes a success envelope with the given status and data.
func WriteSuccess(w http.ResponseWriter, r *http.Request, status int, data any) error {
	return writeJSON(w, status, SuccessEnvelope{
		Success: true,
		Data:    data,
		Meta:    metaFor(r),
	})
}

// WriteError writes an error envelope for a tagged error. The status is
// derived from the error's taxonomy kind.
func WriteError(w http.ResponseWriter, r *http.Request, derr *common.Error) error {
	return writeJSON(w, derr.Status(), ErrorEnvelope{
		Error: ErrorBody{
			Code:    string(derr.Kind),
			Message: derr.Message,
			Field:   derr.Field,
		},
		Meta: metaFor(r),
	})
}

// Decode reads the request body and unmarshals it from JSON into a value
// of type T.
func Decode[T any](r *http.Request) (T, error) {
	var data T

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return data, err
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, &data); err != nil {
		return data, err
	}
	return data, nil
}
