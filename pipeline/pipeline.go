// Package pipeline defines the contract between the stream runtime and the
// asynchronous store operators: rows addressed by position, and a per-record
// result future that the operators complete exactly once.
package pipeline

import (
	"sync"
	"sync/atomic"
)

// Row is one record delivered by the runtime. Fields are addressed by the
// positions resolved through a schema.ColumnIndex.
type Row interface {
	Arity() int
	Field(i int) any
}

// Values is a Row backed by a slice.
type Values []any

// NewValues returns a row with n unset fields.
func NewValues(n int) Values {
	return make(Values, n)
}

func (v Values) Arity() int { return len(v) }

// Field returns the value at position i, or nil when i is out of range.
func (v Values) Field(i int) any {
	if i < 0 || i >= len(v) {
		return nil
	}
	return v[i]
}

// SetField stores value at position i. Out-of-range positions are ignored.
func (v Values) SetField(i int, value any) {
	if i < 0 || i >= len(v) {
		return
	}
	v[i] = value
}

// ResultFuture receives the output of one record. It is owned by the runtime.
type ResultFuture interface {
	Complete(rows []Row)
}

// ResultFutureFunc adapts a function to ResultFuture.
type ResultFutureFunc func(rows []Row)

func (f ResultFutureFunc) Complete(rows []Row) { f(rows) }

// Completion guards a ResultFuture so that only the first completion reaches
// it. The I/O callback and the timeout path both complete through it; the
// loser of the race is a no-op.
type Completion struct {
	future ResultFuture
	once   sync.Once
	done   chan struct{}
	won    atomic.Bool
}

// NewCompletion wraps future.
func NewCompletion(future ResultFuture) *Completion {
	return &Completion{
		future: future,
		done:   make(chan struct{}),
	}
}

// Complete forwards rows to the wrapped future if nothing has completed it
// yet. It reports whether this call was the one that completed it.
func (c *Completion) Complete(rows []Row) bool {
	first := false
	c.once.Do(func() {
		first = true
		c.won.Store(true)
		if c.future != nil {
			c.future.Complete(rows)
		}
		close(c.done)
	})
	return first
}

// Completed reports whether the record has been completed.
func (c *Completion) Completed() bool {
	return c.won.Load()
}

// Done is closed once the record has been completed.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Collector is a ResultFuture that keeps every completion it receives.
// Runtimes without their own collector, and tests, use it to observe output.
type Collector struct {
	mu    sync.Mutex
	calls [][]Row
}

func (c *Collector) Complete(rows []Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, rows)
}

// Calls returns how many times Complete was called.
func (c *Collector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Rows returns the rows of every completion in arrival order.
func (c *Collector) Rows() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Row
	for _, rows := range c.calls {
		out = append(out, rows...)
	}
	return out
}
