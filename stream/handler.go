// Package stream provides AWS Lambda handlers that feed stream records to a
// writer.
//
// The handler is the driving runtime of the write path: it turns every record
// of a batch into a row, hands it to the writer, then waits for the batch to
// complete. Records still in flight when the timeout window closes are forced
// complete; their writes may still land later.
package stream

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jacentio/featurewindow/pipeline"
	"github.com/jacentio/featurewindow/schema"
)

// Invoker starts the asynchronous processing of one row. *writer.Writer and
// *reader.Reader implement it.
type Invoker interface {
	Invoke(ctx context.Context, row pipeline.Row, future pipeline.ResultFuture) (*pipeline.Pending, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithTimeout sets how long a batch waits for its records. Zero waits until
// the invocation context ends.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithSink receives the output row of every record.
func WithSink(sink pipeline.ResultFuture) Option {
	return func(h *Handler) { h.sink = sink }
}

// Handler maps stream records onto rows of the declared input columns.
type Handler struct {
	invoker Invoker
	index   *schema.ColumnIndex
	timeout time.Duration
	logger  *zap.Logger
	sink    pipeline.ResultFuture
}

// Summary describes one processed batch.
type Summary struct {
	BatchID  string
	Records  int
	Skipped  int
	Failed   int
	TimedOut int
}

// NewHandler creates a new stream handler.
func NewHandler(invoker Invoker, index *schema.ColumnIndex, opts ...Option) *Handler {
	h := &Handler{
		invoker: invoker,
		index:   index,
		logger:  zap.NewNop(),
		sink:    pipeline.ResultFutureFunc(func([]pipeline.Row) {}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleDynamoDBEvent processes the new images of INSERT and MODIFY records.
// Per-record failures are only logged and counted; the returned error is a
// setup defect, such as a writer that was never opened.
func (h *Handler) HandleDynamoDBEvent(ctx context.Context, event events.DynamoDBEvent) error {
	_, err := h.ProcessDynamoDBEvent(ctx, event)
	return err
}

// ProcessDynamoDBEvent is HandleDynamoDBEvent returning the batch summary.
func (h *Handler) ProcessDynamoDBEvent(ctx context.Context, event events.DynamoDBEvent) (Summary, error) {
	var rows []pipeline.Row
	skipped := 0
	for _, record := range event.Records {
		if record.EventName != string(events.DynamoDBOperationTypeInsert) &&
			record.EventName != string(events.DynamoDBOperationTypeModify) {
			skipped++
			continue
		}
		rows = append(rows, h.rowFromImage(record.Change.NewImage))
	}
	return h.process(ctx, rows, skipped)
}

// HandleKinesisEvent processes records whose payload is a JSON object keyed
// by input column name. Records that do not decode are skipped.
func (h *Handler) HandleKinesisEvent(ctx context.Context, event events.KinesisEvent) error {
	_, err := h.ProcessKinesisEvent(ctx, event)
	return err
}

// ProcessKinesisEvent is HandleKinesisEvent returning the batch summary.
func (h *Handler) ProcessKinesisEvent(ctx context.Context, event events.KinesisEvent) (Summary, error) {
	var rows []pipeline.Row
	skipped := 0
	for _, record := range event.Records {
		payload, err := decodePayload(record.Kinesis.Data)
		if err != nil {
			h.logger.Warn("skipping undecodable record",
				zap.String("event_id", record.EventID),
				zap.Error(err),
			)
			skipped++
			continue
		}
		rows = append(rows, h.rowFromPayload(payload))
	}
	return h.process(ctx, rows, skipped)
}

func (h *Handler) process(ctx context.Context, rows []pipeline.Row, skipped int) (Summary, error) {
	summary := Summary{BatchID: uuid.NewString(), Records: len(rows), Skipped: skipped}
	logger := h.logger.With(zap.String("batch_id", summary.BatchID))

	pendings := make([]*pipeline.Pending, 0, len(rows))
	for _, row := range rows {
		p, err := h.invoker.Invoke(ctx, row, h.sink)
		if err != nil {
			logger.Error("record rejected", zap.Error(err))
			return summary, err
		}
		pendings = append(pendings, p)
	}

	var deadline <-chan time.Time
	if h.timeout > 0 {
		timer := time.NewTimer(h.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	expired := false
	for _, p := range pendings {
		if !expired {
			select {
			case <-p.Done():
			case <-deadline:
				expired = true
			case <-ctx.Done():
				expired = true
			}
		}
		if expired && p.Timeout() {
			summary.TimedOut++
		}
		if err := p.Err(); err != nil && !errors.Is(err, pipeline.ErrTimeout) {
			summary.Failed++
		}
	}

	logger.Info("batch processed",
		zap.Int("records", summary.Records),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("timed_out", summary.TimedOut),
	)
	return summary, nil
}

// rowFromImage places each image attribute at the position of the input
// column of the same name.
func (h *Handler) rowFromImage(image map[string]events.DynamoDBAttributeValue) pipeline.Values {
	columns := h.index.InputColumns()
	row := pipeline.NewValues(len(columns))
	for i, col := range columns {
		if v, ok := image[col]; ok {
			row.SetField(i, attrValue(v))
		}
	}
	return row
}

func (h *Handler) rowFromPayload(payload map[string]any) pipeline.Values {
	columns := h.index.InputColumns()
	row := pipeline.NewValues(len(columns))
	for i, col := range columns {
		row.SetField(i, payload[col])
	}
	return row
}

// decodePayload decodes a JSON object. Integral numbers become int64 so
// epoch-millisecond timestamps survive intact.
func decodePayload(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	for k, v := range payload {
		if n, ok := v.(json.Number); ok {
			payload[k] = numberValue(string(n))
		}
	}
	return payload, nil
}
