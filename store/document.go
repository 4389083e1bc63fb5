package store

import "github.com/jacentio/featurewindow/schema"

// Document is one stored row: its key and one cell per data column.
type Document struct {
	// Key is the full row key ("<entity>#<inverted millis>").
	Key []byte

	// Cells maps qualifier (data column name) to UTF-8 value.
	Cells map[string]string
}

// ScanShape selects which cells a scan returns.
type ScanShape int

const (
	// RangeOverRow returns every cell of each row in range.
	RangeOverRow ScanShape = iota
	// RangeOverData returns only the enumerated data columns.
	RangeOverData
)

func (s ScanShape) String() string {
	switch s {
	case RangeOverRow:
		return "range-over-row"
	case RangeOverData:
		return "range-over-data"
	}
	return "unknown"
}

// ScanRequest is a bounded-range scan over [Start, End). Columns is set only
// for RangeOverData.
type ScanRequest struct {
	Shape   ScanShape
	Start   []byte
	End     []byte
	Columns []string
}

// NewRangeOverData returns a scan filtered to columns.
func NewRangeOverData(start, end []byte, columns []string) ScanRequest {
	return ScanRequest{
		Shape:   RangeOverData,
		Start:   start,
		End:     end,
		Columns: append([]string(nil), columns...),
	}
}

// NewRangeOverRow returns an unfiltered scan.
func NewRangeOverRow(start, end []byte) ScanRequest {
	return ScanRequest{Shape: RangeOverRow, Start: start, End: end}
}

// ScanSelector binds the request shape to a schema once. Every Select with
// the same selector produces the same shape.
type ScanSelector struct {
	shape   ScanShape
	columns []string
}

// NewScanSelector decides the shape for d: filtered to the data columns when
// d declares any, whole-row otherwise.
func NewScanSelector(d *schema.Descriptor) *ScanSelector {
	if d.HasDataColumns() {
		return &ScanSelector{shape: RangeOverData, columns: d.DataColumns()}
	}
	return &ScanSelector{shape: RangeOverRow}
}

// Shape returns the bound shape.
func (s *ScanSelector) Shape() ScanShape { return s.shape }

// Select builds the request for [start, end).
func (s *ScanSelector) Select(start, end []byte) ScanRequest {
	if s.shape == RangeOverData {
		return NewRangeOverData(start, end, s.columns)
	}
	return NewRangeOverRow(start, end)
}
