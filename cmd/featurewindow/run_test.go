package main

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jacentio/featurewindow/config"
	"github.com/jacentio/featurewindow/metrics"
	"github.com/jacentio/featurewindow/pipeline"
	"github.com/jacentio/featurewindow/reader"
	"github.com/jacentio/featurewindow/store"
	"github.com/jacentio/featurewindow/writer"
)

type memBackend struct {
	mu      sync.Mutex
	exists  bool
	creates int
	puts    []store.Document
	scans   []store.ScanRequest
}

func (m *memBackend) Name() string                     { return "features" }
func (m *memBackend) Retention() time.Duration         { return time.Hour }
func (m *memBackend) ColumnFamily() string             { return "ts" }
func (m *memBackend) Initialize(context.Context) error { return nil }

func (m *memBackend) TableExists(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists, nil
}

func (m *memBackend) CreateTable(context.Context, time.Duration, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	m.exists = true
	return nil
}

func (m *memBackend) Put(_ context.Context, doc store.Document) <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, doc)
	result := make(chan error, 1)
	result <- nil
	return result
}

func (m *memBackend) Scan(_ context.Context, req store.ScanRequest) iter.Seq2[store.Document, error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans = append(m.scans, req)
	return func(func(store.Document, error) bool) {}
}

func testApp(t *testing.T, yaml string) *app {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	desc, err := cfg.Setup()
	require.NoError(t, err)
	return &app{cfg: cfg, desc: desc, logger: zap.NewNop()}
}

func TestOperator_Write(t *testing.T) {
	a := testApp(t, `
table: features
access_kind: write
write_timeout: 3s
read_timeout: 7s
columns:
  input: [customer_doc_key, doc_data_amount, event_timestamp, rowtime]
`)
	st := &memBackend{}

	op, timeout, err := a.operator(context.Background(), st, metrics.Nop{})
	require.NoError(t, err)

	w, ok := op.(*writer.Writer)
	require.True(t, ok, "expected a writer, got %T", op)
	assert.Equal(t, writer.Ready, w.State())
	assert.Equal(t, 3*time.Second, timeout)
	assert.Equal(t, 1, st.creates)
}

func TestOperator_ScanKindsNeverWrite(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		row   pipeline.Values
		shape store.ScanShape
	}{
		{
			name: "scan-by-key",
			yaml: `
table: features
access_kind: scan-by-key
read_timeout: 7s
columns:
  input: [x_doc_key, doc_duration, event_timestamp, rowtime]
  output: [x_doc_key, documents]
`,
			row:   pipeline.Values{"c-1", "1h", time.UnixMilli(1_700_000_000_000), time.UnixMilli(1_700_000_000_000)},
			shape: store.RangeOverRow,
		},
		{
			name: "scan-by-range",
			yaml: `
table: features
access_kind: scan-by-range
read_timeout: 7s
columns:
  input: [x_doc_key, doc_data_amount, doc_duration, event_timestamp, rowtime]
  output: [x_doc_key, doc_data_amount]
`,
			row:   pipeline.Values{"c-1", "", "1h", time.UnixMilli(1_700_000_000_000), time.UnixMilli(1_700_000_000_000)},
			shape: store.RangeOverData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testApp(t, tt.yaml)
			st := &memBackend{exists: true}

			op, timeout, err := a.operator(context.Background(), st, metrics.Nop{})
			require.NoError(t, err)

			r, ok := op.(*reader.Reader)
			require.True(t, ok, "expected a reader, got %T", op)
			assert.Equal(t, tt.shape, r.Shape())
			assert.Equal(t, 7*time.Second, timeout)

			c := &pipeline.Collector{}
			p, err := op.Invoke(context.Background(), tt.row, c)
			require.NoError(t, err)
			select {
			case <-p.Done():
			case <-time.After(time.Second):
				t.Fatal("record was not completed")
			}

			assert.Len(t, st.scans, 1)
			assert.Empty(t, st.puts)
			assert.Zero(t, st.creates)
		})
	}
}

func TestWriter_ProvisionRecorded(t *testing.T) {
	a := testApp(t, `
table: features
columns:
  input: [customer_doc_key, doc_data_amount, event_timestamp, rowtime]
`)
	rec := metrics.NewRecorder()

	_, err := a.writer(context.Background(), &memBackend{}, metrics.Multi{metrics.Nop{}, rec})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count(metrics.ProvisionSuccess))

	rec = metrics.NewRecorder()
	_, err = a.writer(context.Background(), &memBackend{exists: true}, metrics.Multi{metrics.Nop{}, rec})
	require.NoError(t, err)
	assert.Zero(t, rec.Count(metrics.ProvisionSuccess))
}
