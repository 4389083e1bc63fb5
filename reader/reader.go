// Package reader enriches pipeline rows with the feature window stored for
// their entity.
//
// Each row names an entity and a time window. The [Reader] turns them into a
// key range, scans it without blocking the stream and completes the record
// with the documents found. The shape of the scan is fixed per schema: rows
// that declare data columns get one value list per data column, rows that
// declare none get every stored cell of every document in the window.
package reader

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jacentio/featurewindow/metrics"
	"github.com/jacentio/featurewindow/pipeline"
	"github.com/jacentio/featurewindow/schema"
	"github.com/jacentio/featurewindow/store"
)

// DefaultDocumentsColumn is the output column whole-row scans fill.
const DefaultDocumentsColumn = "documents"

var (
	// ErrNotReady is returned by Invoke before Open has succeeded.
	ErrNotReady = errors.New("featurewindow: reader is not ready")

	// ErrTimeout is the cause recorded on records completed by Pending.Timeout.
	ErrTimeout = pipeline.ErrTimeout
)

// Scanner is the store surface the reader drives. *store.Store implements it.
type Scanner interface {
	Name() string
	Initialize(ctx context.Context) error
	Scan(ctx context.Context, req store.ScanRequest) iter.Seq2[store.Document, error]
}

var _ Scanner = (*store.Store)(nil)

// Option configures a Reader.
type Option func(*Reader)

// WithObserver sets the metrics handle. Default: metrics.Nop.
func WithObserver(o metrics.Observer) Option {
	return func(r *Reader) { r.observer = o }
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// WithDocumentsColumn sets the output column whole-row scans fill.
func WithDocumentsColumn(name string) Option {
	return func(r *Reader) { r.documentsColumn = name }
}

// WithClock overrides the clock latencies are measured with.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) { r.now = now }
}

// Reader coordinates window scans for pipeline rows.
type Reader struct {
	store           Scanner
	desc            *schema.Descriptor
	selector        *store.ScanSelector
	observer        metrics.Observer
	logger          *zap.Logger
	documentsColumn string
	now             func() time.Time

	openOnce sync.Once
	openErr  error
	ready    atomic.Bool
}

// New returns a reader for rows described by desc. The descriptor must
// already have passed schema.Validate for its scan pattern.
func New(st Scanner, desc *schema.Descriptor, opts ...Option) *Reader {
	r := &Reader{
		store:           st,
		desc:            desc,
		selector:        store.NewScanSelector(desc),
		observer:        metrics.Nop{},
		logger:          zap.NewNop(),
		documentsColumn: DefaultDocumentsColumn,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("table", st.Name()), zap.Stringer("shape", r.selector.Shape()))
	if r.selector.Shape() == store.RangeOverRow && !desc.Index().HasOutput(r.documentsColumn) {
		r.logger.Warn("documents column is not a declared output, whole-row scans only pass rows through",
			zap.String("column", r.documentsColumn))
	}
	return r
}

// Shape returns the scan shape bound to the reader's schema.
func (r *Reader) Shape() store.ScanShape { return r.selector.Shape() }

// Open initializes the store. It runs once; later callers get the first
// call's result.
func (r *Reader) Open(ctx context.Context) error {
	r.openOnce.Do(func() {
		if r.openErr = r.store.Initialize(ctx); r.openErr != nil {
			r.logger.Error("store initialization failed", zap.Error(r.openErr))
			return
		}
		r.ready.Store(true)
	})
	return r.openErr
}

// Invoke scans the window row asks for and completes future with the
// enriched output row. It returns as soon as the scan is started. The only
// error is ErrNotReady; a failed scan completes the record un-enriched.
func (r *Reader) Invoke(ctx context.Context, row pipeline.Row, future pipeline.ResultFuture) (*pipeline.Pending, error) {
	if !r.ready.Load() {
		return nil, ErrNotReady
	}

	output := r.desc.Index().Project(row)
	pending := pipeline.NewPending(future, output, func() {
		r.observer.Mark(metrics.ReadTimeout)
	})

	start := r.now()
	from, to, err := r.desc.Window(row)
	if err != nil {
		r.failed(start, err)
		pending.Resolve([]pipeline.Row{output}, err)
		return pending, nil
	}

	req := r.selector.Select(from, to)
	go func() {
		enriched, n, err := r.scan(ctx, req, output)
		if err != nil {
			r.failed(start, err)
			pending.Resolve([]pipeline.Row{output}, err)
			return
		}
		for i := 0; i < n; i++ {
			r.observer.Mark(metrics.ReadDocuments)
		}
		r.observer.Mark(metrics.ReadSuccess)
		r.observer.Observe(metrics.ReadSuccess, r.now().Sub(start))
		pending.Resolve([]pipeline.Row{enriched}, nil)
	}()
	return pending, nil
}

// scan runs req and returns a copy of output carrying the results, plus the
// number of documents read.
func (r *Reader) scan(ctx context.Context, req store.ScanRequest, output pipeline.Values) (pipeline.Values, int, error) {
	enriched := append(pipeline.Values(nil), output...)
	n := 0

	if req.Shape == store.RangeOverData {
		lists := make(map[string][]string, len(req.Columns))
		for doc, err := range r.store.Scan(ctx, req) {
			if err != nil {
				return nil, 0, err
			}
			n++
			for _, col := range req.Columns {
				lists[col] = append(lists[col], doc.Cells[col])
			}
		}
		for _, col := range req.Columns {
			if i, err := r.desc.Index().OutputIndex(col); err == nil {
				enriched.SetField(i, lists[col])
			}
		}
		return enriched, n, nil
	}

	var docs []map[string]string
	for doc, err := range r.store.Scan(ctx, req) {
		if err != nil {
			return nil, 0, err
		}
		n++
		docs = append(docs, doc.Cells)
	}
	if i, err := r.desc.Index().OutputIndex(r.documentsColumn); err == nil {
		enriched.SetField(i, docs)
	}
	return enriched, n, nil
}

func (r *Reader) failed(start time.Time, err error) {
	r.observer.Mark(metrics.ReadFailure)
	r.observer.Observe(metrics.ReadFailure, r.now().Sub(start))
	r.logger.Warn("window scan failed", zap.Error(err))
}
