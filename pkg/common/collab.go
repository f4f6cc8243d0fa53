package common

import (
	"context"
	"io"
	"net/http"

	"github.com/stagewire/dispatch/pkg/store"
)

// Collaborators bundles the external services the dispatch core invokes
// but does not implement: persistence, the shared counter store, blob
// storage, identity verification, and outbound providers. All of them are
// interfaces; wiring concrete implementations is the host application's
// job.
type Collaborators struct {
	DB       Database
	Counters store.CounterStore
	Blobs    BlobStore
	Identity IdentityResolver
	Mail     Mailer
	SMS      Texter
	AI       Completer
}

// Database is the prepare/bind/execute surface of the relational store.
// The core only requires request/response semantics, not schema.
type Database interface {
	Prepare(query string) Statement
}

// Statement is a prepared query. Bind returns the statement for chaining.
type Statement interface {
	Bind(args ...any) Statement

	// Run executes the statement without reading results.
	Run(ctx context.Context) error

	// First unmarshals the first result row into dest, or returns a
	// tagged not-found error when there is none.
	First(ctx context.Context, dest any) error

	// All unmarshals every result row into dest, which must be a pointer
	// to a slice.
	All(ctx context.Context, dest any) error
}

// BlobStore stores opaque object bytes.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// IdentityResolver turns request credentials into a subject identifier.
// Resolve fails with an error when credentials are missing or invalid; it
// never returns an empty subject on success.
type IdentityResolver interface {
	Resolve(r *http.Request) (string, error)
}

// Mailer sends outbound email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Texter sends outbound SMS.
type Texter interface {
	Text(ctx context.Context, to, message string) error
}

// Completer produces an AI completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
