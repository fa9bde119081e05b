// SPDX-License-Identifier: MPL-2.0

package op

// Sequence runs a first op and then a second op built from the first's
// payload. A failing first op finishes the sequence with its result and
// a zero payload.
type Sequence[A, B any] struct {
	Base[B]
	first  Typed[A]
	next   func(A) Typed[B]
	second Typed[B]
}

// Then creates a Sequence.
func Then[A, B any](first Typed[A], next func(A) Typed[B], onDone Callback[B]) *Sequence[A, B] {
	return &Sequence[A, B]{Base: NewBase(onDone), first: first, next: next}
}

// Perform starts the first op.
func (s *Sequence[A, B]) Perform() {
	if !s.Begin() {
		return
	}
	s.first.Perform()
	s.advance()
}

// Update polls whichever op is running.
func (s *Sequence[A, B]) Update() {
	if !s.IsPerforming() {
		return
	}
	if s.second == nil {
		s.first.Update()
	} else {
		s.second.Update()
	}
	s.advance()
}

func (s *Sequence[A, B]) advance() {
	if s.second == nil {
		if !s.first.IsDone() {
			return
		}
		if r := s.first.Result(); r != Success {
			var zero B
			s.Finish(r, zero)
			return
		}
		s.second = s.next(s.first.Payload())
		s.second.Perform()
	}
	if s.second.IsDone() {
		s.Finish(s.second.Result(), s.second.Payload())
	}
}

// Progress splits evenly between the two steps.
func (s *Sequence[A, B]) Progress() float64 {
	if s.IsDone() {
		return 1
	}
	if s.second == nil {
		return s.first.Progress() / 2
	}
	return 0.5 + s.second.Progress()/2
}
