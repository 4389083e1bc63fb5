package reader_test

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jacentio/featurewindow/internal/rowkey"
	"github.com/jacentio/featurewindow/metrics"
	"github.com/jacentio/featurewindow/pipeline"
	"github.com/jacentio/featurewindow/reader"
	"github.com/jacentio/featurewindow/schema"
	"github.com/jacentio/featurewindow/store"
)

type fakeScanner struct {
	mu       sync.Mutex
	docs     []store.Document
	scanErr  error
	initErr  error
	initCall int
	release  chan struct{}
	requests []store.ScanRequest
}

func (f *fakeScanner) Name() string { return "features" }

func (f *fakeScanner) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCall++
	return f.initErr
}

func (f *fakeScanner) Scan(_ context.Context, req store.ScanRequest) iter.Seq2[store.Document, error] {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return func(yield func(store.Document, error) bool) {
		if f.release != nil {
			<-f.release
		}
		if f.scanErr != nil {
			yield(store.Document{}, f.scanErr)
			return
		}
		for _, doc := range f.docs {
			if !yield(doc, nil) {
				return
			}
		}
	}
}

var ts = time.UnixMilli(1_700_000_000_000)

func newReader(t *testing.T, sc *fakeScanner, rec *metrics.Recorder, kind schema.AccessKind, input, output []string) *reader.Reader {
	t.Helper()
	idx, err := schema.NewColumnIndex(input, output)
	require.NoError(t, err)
	desc := schema.NewDescriptor(idx, schema.DefaultConventions())
	require.NoError(t, schema.Validate(schema.DefaultAccessPattern(kind, desc.Conventions()), idx.InputColumns()))
	r := reader.New(sc, desc, reader.WithObserver(rec))
	require.NoError(t, r.Open(context.Background()))
	return r
}

func wait(t *testing.T, p *pipeline.Pending) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("record was not completed")
	}
}

func TestInvoke_RangeOverData(t *testing.T) {
	sc := &fakeScanner{docs: []store.Document{
		{Key: rowkey.Encode("c-1", ts), Cells: map[string]string{"doc_data_amount": "3"}},
		{Key: rowkey.Encode("c-1", ts.Add(-time.Minute)), Cells: map[string]string{"doc_data_amount": "2"}},
	}}
	rec := metrics.NewRecorder()
	input := []string{"doc_key", "doc_data_amount", "doc_duration", "event_timestamp", "rowtime"}
	r := newReader(t, sc, rec, schema.KindDataRangeScan, input, []string{"doc_key", "doc_data_amount"})
	c := &pipeline.Collector{}

	assert.Equal(t, store.RangeOverData, r.Shape())

	p, err := r.Invoke(context.Background(), pipeline.Values{"c-1", nil, time.Hour, ts, ts}, c)
	require.NoError(t, err)
	wait(t, p)

	require.Len(t, sc.requests, 1)
	req := sc.requests[0]
	start, end := rowkey.Window("c-1", ts.Add(-time.Hour), ts)
	assert.Equal(t, start, req.Start)
	assert.Equal(t, end, req.End)
	assert.Equal(t, []string{"doc_data_amount"}, req.Columns)

	assert.Equal(t, []pipeline.Row{pipeline.Values{"c-1", []string{"3", "2"}}}, c.Rows())
	assert.Equal(t, 1, rec.Count(metrics.ReadSuccess))
	assert.Equal(t, 2, rec.Count(metrics.ReadDocuments))
	assert.NoError(t, p.Err())
}

func TestInvoke_RangeOverRow(t *testing.T) {
	sc := &fakeScanner{docs: []store.Document{
		{Key: rowkey.Encode("c-1", ts), Cells: map[string]string{"a": "1", "b": "2"}},
	}}
	rec := metrics.NewRecorder()
	input := []string{"doc_key", "doc_earliest", "doc_latest", "event_timestamp", "rowtime"}
	r := newReader(t, sc, rec, schema.KindKeyRangeScan, input, []string{"doc_key", "documents"})
	c := &pipeline.Collector{}

	assert.Equal(t, store.RangeOverRow, r.Shape())

	earliest := ts.Add(-24 * time.Hour)
	p, err := r.Invoke(context.Background(), pipeline.Values{"c-1", earliest, ts, ts, ts}, c)
	require.NoError(t, err)
	wait(t, p)

	req := sc.requests[0]
	assert.Nil(t, req.Columns)
	start, end := rowkey.Window("c-1", earliest, ts)
	assert.Equal(t, start, req.Start)
	assert.Equal(t, end, req.End)

	assert.Equal(t, []pipeline.Row{pipeline.Values{"c-1", []map[string]string{{"a": "1", "b": "2"}}}}, c.Rows())
}

func TestInvoke_ScanFailure(t *testing.T) {
	sc := &fakeScanner{scanErr: errors.New("throttled")}
	rec := metrics.NewRecorder()
	input := []string{"doc_key", "doc_data_amount", "doc_duration", "event_timestamp", "rowtime"}
	r := newReader(t, sc, rec, schema.KindDataRangeScan, input, []string{"doc_key", "doc_data_amount"})
	c := &pipeline.Collector{}

	p, err := r.Invoke(context.Background(), pipeline.Values{"c-1", nil, time.Hour, ts, ts}, c)
	require.NoError(t, err)
	wait(t, p)

	assert.Equal(t, 1, rec.Count(metrics.ReadFailure))
	assert.Zero(t, rec.Count(metrics.ReadSuccess))
	assert.Equal(t, []pipeline.Row{pipeline.Values{"c-1", nil}}, c.Rows())
	assert.EqualError(t, p.Err(), "throttled")
}

func TestInvoke_WindowFailure(t *testing.T) {
	sc := &fakeScanner{}
	rec := metrics.NewRecorder()
	input := []string{"doc_key", "doc_data_amount", "doc_duration", "event_timestamp", "rowtime"}
	r := newReader(t, sc, rec, schema.KindDataRangeScan, input, []string{"doc_key"})
	c := &pipeline.Collector{}

	p, err := r.Invoke(context.Background(), pipeline.Values{"c-1", nil, nil, ts, ts}, c)
	require.NoError(t, err)
	wait(t, p)

	assert.Empty(t, sc.requests)
	assert.Equal(t, 1, rec.Count(metrics.ReadFailure))
	assert.ErrorIs(t, p.Err(), schema.ErrMissingValue)
}

func TestInvoke_Timeout(t *testing.T) {
	sc := &fakeScanner{release: make(chan struct{})}
	rec := metrics.NewRecorder()
	input := []string{"doc_key", "doc_data_amount", "doc_duration", "event_timestamp", "rowtime"}
	r := newReader(t, sc, rec, schema.KindDataRangeScan, input, []string{"doc_key", "doc_data_amount"})
	c := &pipeline.Collector{}

	p, err := r.Invoke(context.Background(), pipeline.Values{"c-1", nil, time.Hour, ts, ts}, c)
	require.NoError(t, err)

	assert.True(t, p.Timeout())
	close(sc.release)
	assert.Eventually(t, func() bool { return rec.Count(metrics.ReadSuccess) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, c.Calls())
	assert.Equal(t, 1, rec.Count(metrics.ReadTimeout))
	assert.ErrorIs(t, p.Err(), reader.ErrTimeout)
}

func TestInvoke_NotReady(t *testing.T) {
	idx, err := schema.NewColumnIndex([]string{"doc_key", "rowtime"}, nil)
	require.NoError(t, err)
	r := reader.New(&fakeScanner{}, schema.NewDescriptor(idx, schema.DefaultConventions()))

	_, err = r.Invoke(context.Background(), pipeline.Values{"c", ts}, &pipeline.Collector{})
	assert.ErrorIs(t, err, reader.ErrNotReady)
}

func TestOpen_Once(t *testing.T) {
	sc := &fakeScanner{initErr: errors.New("missing table")}
	idx, err := schema.NewColumnIndex([]string{"doc_key", "rowtime"}, nil)
	require.NoError(t, err)
	r := reader.New(sc, schema.NewDescriptor(idx, schema.DefaultConventions()))

	assert.Error(t, r.Open(context.Background()))
	assert.Error(t, r.Open(context.Background()))
	assert.Equal(t, 1, sc.initCall)
}

func TestNew_WarnsWithoutDocumentsColumn(t *testing.T) {
	input := []string{"doc_key", "doc_duration", "event_timestamp", "rowtime"}
	tests := []struct {
		name     string
		output   []string
		opts     []reader.Option
		warnings int
	}{
		{"declared", []string{"doc_key", "documents"}, nil, 0},
		{"missing", []string{"doc_key"}, nil, 1},
		{"renamed", []string{"doc_key", "window"}, []reader.Option{reader.WithDocumentsColumn("window")}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			idx, err := schema.NewColumnIndex(input, tt.output)
			require.NoError(t, err)

			opts := append([]reader.Option{reader.WithLogger(zap.New(core))}, tt.opts...)
			reader.New(&fakeScanner{}, schema.NewDescriptor(idx, schema.DefaultConventions()), opts...)

			assert.Equal(t, tt.warnings, logs.Len())
		})
	}
}
