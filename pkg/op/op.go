// SPDX-License-Identifier: MPL-2.0

// Package op is a small cooperative task framework. An Op is performed
// once, then polled with Update on every tick until it is done, at which
// point its completion callback fires exactly once.
//
// Ops are not safe for concurrent use. Only Done, IsDone and, after Done
// is closed, Result and Payload may be called from other goroutines.
package op

type (
	// Op is a pollable unit of work.
	Op interface {
		// Perform starts the op. Calling it again has no effect.
		Perform()
		// Update advances a performing op.
		Update()
		IsPerforming() bool
		IsDone() bool
		Result() Result
		// Progress is in [0, 1].
		Progress() float64
		// Done is closed on completion.
		Done() <-chan struct{}
	}

	// Typed is an Op that produces a payload.
	Typed[T any] interface {
		Op
		Payload() T
	}

	// Callback receives an op's result and payload.
	Callback[T any] func(Result, T)

	// Base carries the completion state shared by every op. Embed it,
	// initialize it with NewBase, and call Begin from Perform and Finish
	// when the work resolves.
	Base[T any] struct {
		onDone     Callback[T]
		performing bool
		started    bool
		result     Result
		payload    T
		done       chan struct{}
	}

	// Immediate is an op whose result is known when it is created.
	Immediate[T any] struct {
		Base[T]
		want  Result
		value T
	}
)

// NewBase returns a Base that fires onDone on completion. onDone may be nil.
func NewBase[T any](onDone Callback[T]) Base[T] {
	return Base[T]{onDone: onDone, done: make(chan struct{})}
}

func (b *Base[T]) ch() chan struct{} {
	if b.done == nil {
		b.done = make(chan struct{})
	}
	return b.done
}

// Begin marks the op as performing. It returns false if the op was
// already started.
func (b *Base[T]) Begin() bool {
	if b.started {
		return false
	}
	b.started = true
	b.performing = true
	return true
}

// Finish records the outcome and fires the callback. Only the first call
// has any effect.
func (b *Base[T]) Finish(r Result, payload T) bool {
	if b.IsDone() {
		return false
	}
	b.started = true
	b.performing = false
	b.result = r
	b.payload = payload
	close(b.ch())
	if b.onDone != nil {
		b.onDone(r, payload)
	}
	return true
}

// IsPerforming reports whether the op started and is not done.
func (b *Base[T]) IsPerforming() bool { return b.performing }

// IsDone reports whether Finish was called.
func (b *Base[T]) IsDone() bool {
	select {
	case <-b.ch():
		return true
	default:
		return false
	}
}

// Result returns the recorded result; Success until done.
func (b *Base[T]) Result() Result { return b.result }

// Payload returns the recorded payload.
func (b *Base[T]) Payload() T { return b.payload }

// Done is closed when the op finishes.
func (b *Base[T]) Done() <-chan struct{} { return b.ch() }

// Completed returns an op that finishes with r and payload when performed.
func Completed[T any](r Result, payload T, onDone Callback[T]) *Immediate[T] {
	return &Immediate[T]{Base: NewBase(onDone), want: r, value: payload}
}

// Perform finishes the op.
func (o *Immediate[T]) Perform() {
	if o.Begin() {
		o.Finish(o.want, o.value)
	}
}

// Update does nothing; an Immediate is done once performed.
func (o *Immediate[T]) Update() {}

// Progress is 1 once performed.
func (o *Immediate[T]) Progress() float64 {
	if o.IsDone() {
		return 1
	}
	return 0
}
