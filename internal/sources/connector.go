// Package sources provides the connectors the broker fans out to and the
// registry that declares them in priority order.
package sources

import (
	"context"
	"errors"
)

var (
	// ErrUnknownKind is returned for a configured kind with no connector.
	ErrUnknownKind = errors.New("unknown source kind")
	// ErrUnknownSource is returned when fetching from an undeclared source id.
	ErrUnknownSource = errors.New("unknown source")

	errNoResult = errors.New("no result")
)

// Connector fetches an answer for query from one external source. Connectors
// do not retry; cancellation of ctx must abort the call.
type Connector interface {
	Fetch(ctx context.Context, query string) (string, error)
}

// Func adapts a function to Connector.
type Func func(ctx context.Context, query string) (string, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// Static always answers with the same text.
type Static string

// Fetch returns the static text.
func (s Static) Fetch(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(s), nil
}
