// SPDX-License-Identifier: MPL-2.0

package op

import (
	"context"

	"github.com/google/uuid"
)

// Request is the caller-facing handle of an op.
type Request[T any] struct {
	id uuid.UUID
	op Typed[T]
}

// NewRequest wraps o.
func NewRequest[T any](o Typed[T]) *Request[T] {
	return &Request[T]{id: uuid.New(), op: o}
}

// ID identifies the request in logs.
func (r *Request[T]) ID() uuid.UUID { return r.id }

// IsDone reports whether the op finished.
func (r *Request[T]) IsDone() bool { return r.op.IsDone() }

// Done is closed when the op finishes.
func (r *Request[T]) Done() <-chan struct{} { return r.op.Done() }

// Result returns the op's result. It is meaningful once IsDone is true.
func (r *Request[T]) Result() Result { return r.op.Result() }

// Payload returns the op's payload. It is meaningful once IsDone is true.
func (r *Request[T]) Payload() T { return r.op.Payload() }

// Progress reports op progress. It must be called from the goroutine
// that ticks the op.
func (r *Request[T]) Progress() float64 { return r.op.Progress() }

// Op returns the wrapped op.
func (r *Request[T]) Op() Typed[T] { return r.op }

// Wait blocks until the op finishes or ctx is done.
func (r *Request[T]) Wait(ctx context.Context) (Result, T, error) {
	select {
	case <-r.op.Done():
		return r.op.Result(), r.op.Payload(), nil
	case <-ctx.Done():
		var zero T
		return ErrorInternal, zero, ctx.Err()
	}
}
