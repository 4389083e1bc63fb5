// Package writer persists pipeline rows as documents without blocking the
// stream.
//
// A [Writer] provisions its table on Open, once per process, then turns every
// row it is handed into a non-blocking put. The record completes when the put
// resolves or when the runtime gives up on it, whichever happens first. Write
// failures and timeouts are counted and logged; they never stop the stream.
package writer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jacentio/featurewindow/metrics"
	"github.com/jacentio/featurewindow/pipeline"
	"github.com/jacentio/featurewindow/schema"
	"github.com/jacentio/featurewindow/store"
)

var (
	// ErrNotReady is returned by Invoke before Open has succeeded.
	ErrNotReady = errors.New("featurewindow: writer is not ready")

	// ErrTimeout is the cause recorded on records completed by Pending.Timeout.
	ErrTimeout = pipeline.ErrTimeout
)

// StoreClient is the store surface the writer drives. *store.Store
// implements it.
type StoreClient interface {
	Name() string
	TableExists(ctx context.Context) (bool, error)
	CreateTable(ctx context.Context, retention time.Duration, columnFamily string) error
	Initialize(ctx context.Context) error
	Put(ctx context.Context, doc store.Document) <-chan error
}

var _ StoreClient = (*store.Store)(nil)

// State is the provisioning state of a Writer.
type State int

const (
	Uninitialized State = iota
	TableChecked
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case TableChecked:
		return "table-checked"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Option configures a Writer.
type Option func(*Writer)

// WithObserver sets the metrics handle. Default: metrics.Nop.
func WithObserver(o metrics.Observer) Option {
	return func(w *Writer) { w.observer = o }
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// WithRetention sets the retention a created table is tagged with.
func WithRetention(d time.Duration) Option {
	return func(w *Writer) { w.retention = d }
}

// WithColumnFamily sets the column family a created table is tagged with.
func WithColumnFamily(family string) Option {
	return func(w *Writer) { w.columnFamily = family }
}

// WithClock overrides the clock latencies are measured with.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// Writer coordinates table provisioning and per-record puts.
type Writer struct {
	store        StoreClient
	desc         *schema.Descriptor
	observer     metrics.Observer
	logger       *zap.Logger
	retention    time.Duration
	columnFamily string
	now          func() time.Time

	openOnce sync.Once
	openErr  error

	mu    sync.RWMutex
	state State
}

// New returns an uninitialized writer for rows described by desc. The
// descriptor must already have passed schema.Validate for the write pattern.
func New(st StoreClient, desc *schema.Descriptor, opts ...Option) *Writer {
	w := &Writer{
		store:        st,
		desc:         desc,
		observer:     metrics.Nop{},
		logger:       zap.NewNop(),
		columnFamily: store.DefaultColumnFamily,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("table", st.Name()))
	return w
}

// State returns the current provisioning state.
func (w *Writer) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Writer) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// Open makes sure the table exists and initializes the store. It runs once;
// concurrent and later callers get the first call's result. A failure is
// final: the writer stays unusable and the pipeline must not start.
func (w *Writer) Open(ctx context.Context) error {
	w.openOnce.Do(func() {
		w.openErr = w.open(ctx)
	})
	return w.openErr
}

func (w *Writer) open(ctx context.Context) error {
	exists, err := w.store.TableExists(ctx)
	if err != nil {
		w.logger.Error("table existence check failed", zap.Error(err))
		return err
	}

	if !exists {
		if err := w.provision(ctx); err != nil {
			return err
		}
	}
	w.setState(TableChecked)

	if err := w.store.Initialize(ctx); err != nil {
		w.logger.Error("store initialization failed", zap.Error(err))
		return err
	}
	w.setState(Ready)
	return nil
}

func (w *Writer) provision(ctx context.Context) error {
	start := w.now()
	err := w.store.CreateTable(ctx, w.retention, w.columnFamily)
	elapsed := w.now().Sub(start)
	if err != nil {
		w.observer.Mark(metrics.ProvisionFailure)
		w.observer.Observe(metrics.ProvisionFailure, elapsed)
		w.logger.Error("table creation failed", zap.Error(err))
		return err
	}
	w.observer.Mark(metrics.ProvisionSuccess)
	w.observer.Observe(metrics.ProvisionSuccess, elapsed)
	w.logger.Info("table created",
		zap.Int64("max_age_ms", w.retention.Milliseconds()),
		zap.String("column_family", w.columnFamily),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

// Invoke writes row and completes future with its pass-through output row.
// It returns as soon as the put is issued. The only error is ErrNotReady;
// per-record failures are reported through metrics, logs and Pending.Err.
func (w *Writer) Invoke(ctx context.Context, row pipeline.Row, future pipeline.ResultFuture) (*pipeline.Pending, error) {
	if w.State() != Ready {
		return nil, ErrNotReady
	}

	output := w.desc.Index().Project(row)
	pending := pipeline.NewPending(future, output, func() {
		w.observer.Mark(metrics.WriteTimeout)
	})
	rows := []pipeline.Row{output}

	start := w.now()
	doc, err := w.document(row)
	if err != nil {
		w.failed(start, doc.Key, err)
		pending.Resolve(rows, err)
		return pending, nil
	}

	result := w.store.Put(ctx, doc)
	go func() {
		err := <-result
		if err != nil {
			w.failed(start, doc.Key, err)
		} else {
			w.observer.Mark(metrics.WriteSuccess)
			w.observer.Observe(metrics.WriteSuccess, w.now().Sub(start))
		}
		pending.Resolve(rows, err)
	}()
	return pending, nil
}

func (w *Writer) failed(start time.Time, key []byte, err error) {
	w.observer.Mark(metrics.WriteFailure)
	w.observer.Observe(metrics.WriteFailure, w.now().Sub(start))
	w.logger.Warn("document write failed",
		zap.ByteString("key", key),
		zap.Error(err),
	)
}

// document builds the stored form of row: its key and its data cells.
func (w *Writer) document(row pipeline.Row) (store.Document, error) {
	key, err := w.desc.Key(row)
	if err != nil {
		return store.Document{}, err
	}
	cells, err := w.desc.DataValues(row)
	if err != nil {
		return store.Document{Key: key}, err
	}
	return store.Document{Key: key, Cells: cells}, nil
}
