package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Client completes prompts against a language model.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ErrUnknownProvider is returned for a provider ID with no client.
var ErrUnknownProvider = errors.New("unknown provider")

// Error is a client failure.
type Error struct {
	// Op is the operation that failed ("complete").
	Op string
	// Err is the underlying error.
	Err error
	// Retryable is true for transient failures such as rate limits.
	Retryable bool
}

// NewError creates an Error.
func NewError(op string, err error, retryable bool) *Error {
	return &Error{Op: op, Err: err, Retryable: retryable}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a retryable client error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// Providers maps provider IDs ("claude", "mistral", ...) to clients.
// It is safe for concurrent use.
type Providers struct {
	mu       sync.RWMutex
	clients  map[string]Client
	fallback Client
}

// NewProviders creates an empty provider set.
func NewProviders() *Providers {
	return &Providers{clients: make(map[string]Client)}
}

// Register sets the client for a provider ID. Returns p for chaining.
func (p *Providers) Register(id string, c Client) *Providers {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[id] = c
	return p
}

// WithFallback sets the client used for unregistered provider IDs.
func (p *Providers) WithFallback(c Client) *Providers {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = c
	return p
}

// Get returns the client for id, the fallback, or ErrUnknownProvider.
func (p *Providers) Get(id string) (Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if c, ok := p.clients[id]; ok {
		return c, nil
	}
	if p.fallback != nil {
		return p.fallback, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
}

// IDs returns the registered provider IDs in sorted order.
func (p *Providers) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
