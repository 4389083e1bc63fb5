package pipeline

import (
	"errors"
	"sync"
)

// ErrTimeout is the cause recorded on a record completed by its timeout.
var ErrTimeout = errors.New("featurewindow: record timed out")

// Pending is the handle of one in-flight record. The operator resolves it when
// its I/O finishes; the runtime calls Timeout when it stops waiting. Whichever
// comes first completes the record.
type Pending struct {
	completion *Completion
	output     Values
	onTimeout  func()

	mu       sync.Mutex
	resolved bool
	err      error
}

// NewPending returns a handle completing future. output is the row emitted
// on timeout. onTimeout runs once, only if the timeout wins.
func NewPending(future ResultFuture, output Values, onTimeout func()) *Pending {
	return &Pending{
		completion: NewCompletion(future),
		output:     output,
		onTimeout:  onTimeout,
	}
}

// Output returns the pass-through row of the record.
func (p *Pending) Output() Values { return p.output }

// Resolve completes the record with rows. err is the per-record cause kept
// for Err; it never reaches the future.
func (p *Pending) Resolve(rows []Row, err error) bool {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return false
	}
	p.resolved = true
	p.err = err
	p.mu.Unlock()
	return p.completion.Complete(rows)
}

// Timeout completes the record with its pass-through row if it is still in
// flight. The I/O keeps running; its late result is discarded.
func (p *Pending) Timeout() bool {
	if !p.Resolve([]Row{p.output}, ErrTimeout) {
		return false
	}
	if p.onTimeout != nil {
		p.onTimeout()
	}
	return true
}

// Completed reports whether the record has been completed.
func (p *Pending) Completed() bool { return p.completion.Completed() }

// Done is closed once the record has been completed.
func (p *Pending) Done() <-chan struct{} { return p.completion.Done() }

// Err returns why the record completed: nil on success, ErrTimeout, or the
// operator's error. It is nil while the record is in flight.
func (p *Pending) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
