// Package transport defines the interface for pluggable render transports.
//
// Each transport (HTTP, gRPC) decodes render requests in its own wire format
// and passes them to the dispatcher through a Handler. The dispatcher doesn't
// care how requests arrive; it only works with the Transport contract.
package transport

import (
	"context"

	"github.com/nadzzz/statlg/internal/message"
)

// Handler processes an incoming render request and returns its result.
// The dispatcher provides this handler to each transport.
type Handler func(ctx context.Context, req *message.RenderRequest) (*message.RenderResult, error)

// PatternLister lists the phrase names available for rendering.
type PatternLister func() []string

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts accepting render requests and passes them to the handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
