// Package mark implements the Mark Allocator (the export engine's
// component for handing out fast-import mark numbers and binding them
// to the Serial of whatever they were assigned to).
package mark

import "fmt"

// Mark is a fast-import mark number (":N" in the stream). Marks start
// at 1; 0 is never assigned and can be used as a sentinel.
type Mark int64

// Serial is the dense, unique, assign-once-per-object identifier given
// to a FileRevision or a Commit at DAG-construction time. It is never
// reassigned (see DESIGN.md, Open Question resolution 2).
type Serial int64

// Allocator hands out marks in allocation order and remembers the
// Serial each mark was bound to, so a second pass over the DAG (the
// Order Planner, the Emitter) can recover "was this already marked,
// and with what mark" without re-deriving it.
//
// Not safe for concurrent use: the core is single-threaded end to end
// (see SPEC_FULL.md §5).
type Allocator struct {
	next       Mark
	maxWidth   int
	bySerial   map[Serial]Mark
	nextSerial Serial
}

// Option configures an Allocator at construction time.
type Option func(*Allocator)

// WithMaxWidth sets the maximum decimal digit width a mark or serial
// is allowed to grow to before NextMark/NextSerial report overflow. A
// width of 0 (the default) disables the check.
func WithMaxWidth(digits int) Option {
	return func(a *Allocator) { a.maxWidth = digits }
}

// NewAllocator returns an Allocator with its counters at their initial
// values (mark and serial numbering both start at 1).
func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{
		next:       1,
		nextSerial: 1,
		bySerial:   make(map[Serial]Mark),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NextMark returns the next unused mark number. Overflow of the
// configured width is a fatal condition for the caller: a stream with
// a truncated or wrapped mark numbering is silently corrupt, so this
// returns an error rather than wrapping.
func (a *Allocator) NextMark() (Mark, error) {
	if a.maxWidth > 0 && digitWidth(int64(a.next)) > a.maxWidth {
		return 0, fmt.Errorf("mark: next mark %d exceeds configured width %d digits", a.next, a.maxWidth)
	}
	m := a.next
	a.next++
	return m, nil
}

// NextSerial returns the next unused Serial. Like NextMark, overflow
// is reported rather than silently wrapped.
func (a *Allocator) NextSerial() (Serial, error) {
	if a.maxWidth > 0 && digitWidth(int64(a.nextSerial)) > a.maxWidth {
		return 0, fmt.Errorf("mark: next serial %d exceeds configured width %d digits", a.nextSerial, a.maxWidth)
	}
	s := a.nextSerial
	a.nextSerial++
	return s, nil
}

// Bind records that serial was assigned mark. It is a programming
// error to bind the same serial twice to different marks; the second
// call overwrites the first silently, matching the Emitter's own
// idempotent-rewrite behaviour (spec §8 "emitting the same DAG twice
// yields byte-identical output").
func (a *Allocator) Bind(serial Serial, m Mark) {
	a.bySerial[serial] = m
}

// MarkOf returns the mark previously bound to serial, if any.
func (a *Allocator) MarkOf(serial Serial) (Mark, bool) {
	m, ok := a.bySerial[serial]
	return m, ok
}

// Count returns the number of marks allocated so far.
func (a *Allocator) Count() int64 {
	return int64(a.next) - 1
}

func digitWidth(n int64) int {
	if n == 0 {
		return 1
	}
	w := 0
	if n < 0 {
		n = -n
	}
	for n > 0 {
		w++
		n /= 10
	}
	return w
}
