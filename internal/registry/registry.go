// Package registry instantiates and tears down one latencyhandler.Handler
// per live game connection, mirroring the lifecycle of a connection
// established and torn down by the socket collaborator.
package registry

import (
	"fmt"
	"sync"

	"github.com/example/anilock/internal/clock"
	"github.com/example/anilock/internal/latencyhandler"
	"github.com/example/anilock/internal/logging"
	"github.com/example/anilock/internal/protocol"
)

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithClock overrides the clock every handler the registry creates is
// built with.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger attaches a base logger; per-connection loggers are derived
// from it with a connection_id field.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithHandlerOptions appends extra options applied to every handler this
// registry creates, after the registry's own defaults.
func WithHandlerOptions(opts ...latencyhandler.Option) Option {
	return func(r *Registry) { r.handlerOpts = append(r.handlerOpts, opts...) }
}

// Registry tracks the one Handler per connection id currently active. It
// is safe for concurrent use: connections are created and closed from
// whatever goroutine the socket collaborator runs its accept loop on.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*latencyhandler.Handler

	subtypes protocol.SubTypeSet
	clock    clock.Clock
	logger   *logging.Logger

	handlerOpts []latencyhandler.Option
}

// New constructs a Registry that builds handlers matching the given
// sub-type taxonomy.
func New(subtypes protocol.SubTypeSet, opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[string]*latencyhandler.Handler),
		subtypes: subtypes,
		clock:    clock.System{},
		logger:   logging.NewTestLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates and registers a new Handler for connectionID, replacing any
// existing handler under the same id. latencyProvider may be nil when the
// caller has no network latency measurement for this connection yet.
func (r *Registry) Open(connectionID string, latencyProvider latencyhandler.NetworkLatencyProvider) *latencyhandler.Handler {
	opts := make([]latencyhandler.Option, 0, len(r.handlerOpts)+3)
	opts = append(opts,
		latencyhandler.WithClock(r.clock),
		latencyhandler.WithLogger(r.logger.With(logging.String("connection_id", connectionID))),
	)
	if latencyProvider != nil {
		opts = append(opts, latencyhandler.WithLatencyProvider(latencyProvider))
	}
	opts = append(opts, r.handlerOpts...)

	handler := latencyhandler.New(connectionID, r.subtypes, opts...)

	r.mu.Lock()
	r.handlers[connectionID] = handler
	r.mu.Unlock()

	r.logger.Info("connection opened", logging.String("connection_id", connectionID))
	return handler
}

// Lookup returns the handler registered for connectionID, if any.
func (r *Registry) Lookup(connectionID string) (*latencyhandler.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[connectionID]
	return h, ok
}

// Close removes the handler registered for connectionID. It returns an
// error if none is registered.
func (r *Registry) Close(connectionID string) error {
	r.mu.Lock()
	_, ok := r.handlers[connectionID]
	delete(r.handlers, connectionID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("registry: no handler for connection %q", connectionID)
	}
	r.logger.Info("connection closed", logging.String("connection_id", connectionID))
	return nil
}

// Len reports how many connections currently have a registered handler.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
