package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jacentio/featurewindow/internal/rowkey"
	"github.com/jacentio/featurewindow/pipeline"
)

// Descriptor derives column roles from a ColumnIndex and the naming
// conventions. Roles are recomputed from the index on every call.
type Descriptor struct {
	index *ColumnIndex
	conv  Conventions
}

// NewDescriptor wraps index. Empty convention names take their defaults.
func NewDescriptor(index *ColumnIndex, conv Conventions) *Descriptor {
	return &Descriptor{index: index, conv: conv.withDefaults()}
}

// Index returns the underlying column index.
func (d *Descriptor) Index() *ColumnIndex { return d.index }

// Conventions returns the naming conventions in effect.
func (d *Descriptor) Conventions() Conventions { return d.conv }

// IsKeyColumn reports whether name is part of the document key.
func (d *Descriptor) IsKeyColumn(name string) bool {
	return strings.Contains(name, d.conv.Key)
}

// IsDataColumn reports whether name carries document data.
func (d *Descriptor) IsDataColumn(name string) bool {
	return strings.Contains(name, d.conv.Data)
}

// HasDataColumns reports whether any input column is a data column.
func (d *Descriptor) HasDataColumns() bool {
	for _, name := range d.index.input {
		if d.IsDataColumn(name) {
			return true
		}
	}
	return false
}

// DataColumns returns the data columns in input order.
func (d *Descriptor) DataColumns() []string {
	var cols []string
	for _, name := range d.index.input {
		if d.IsDataColumn(name) {
			cols = append(cols, name)
		}
	}
	return cols
}

// KeyColumn returns the first input column that is a key column.
func (d *Descriptor) KeyColumn() (string, error) {
	return d.firstContaining(d.conv.Key)
}

func (d *Descriptor) firstContaining(marker string) (string, error) {
	for _, name := range d.index.input {
		if strings.Contains(name, marker) {
			return name, nil
		}
	}
	return "", &UnknownColumnError{Name: marker}
}

// Entity returns the key column value of row.
func (d *Descriptor) Entity(row pipeline.Row) (string, error) {
	col, err := d.KeyColumn()
	if err != nil {
		return "", err
	}
	v, err := d.field(row, col)
	if err != nil {
		return "", err
	}
	entity := CellValue(v)
	if entity == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingValue, col)
	}
	return entity, nil
}

// Key builds the row key of row: its entity plus its inverted rowtime.
func (d *Descriptor) Key(row pipeline.Row) ([]byte, error) {
	entity, err := d.Entity(row)
	if err != nil {
		return nil, err
	}
	ts, err := d.timeOf(row, d.conv.Rowtime)
	if err != nil {
		return nil, err
	}
	return rowkey.Encode(entity, ts), nil
}

// DataValues renders every data column of row as a UTF-8 cell value.
func (d *Descriptor) DataValues(row pipeline.Row) (map[string]string, error) {
	cells := make(map[string]string)
	for _, col := range d.DataColumns() {
		v, err := d.field(row, col)
		if err != nil {
			return nil, err
		}
		cells[col] = CellValue(v)
	}
	return cells, nil
}

// Window returns the [start, end) key range a read row asks for. The range
// ends at the row's latest column if declared, otherwise at its rowtime, and
// starts at the earliest column or latest minus the duration column.
func (d *Descriptor) Window(row pipeline.Row) (start, end []byte, err error) {
	entity, err := d.Entity(row)
	if err != nil {
		return nil, nil, err
	}

	latestCol := d.conv.Rowtime
	if _, err := d.firstContaining(d.conv.Latest); err == nil {
		latestCol = d.conv.Latest
	}
	latest, err := d.timeOf(row, latestCol)
	if err != nil {
		return nil, nil, err
	}

	var earliest time.Time
	if _, err := d.firstContaining(d.conv.Earliest); err == nil {
		if earliest, err = d.timeOf(row, d.conv.Earliest); err != nil {
			return nil, nil, err
		}
	} else {
		dur, err := d.durationOf(row)
		if err != nil {
			return nil, nil, err
		}
		earliest = latest.Add(-dur)
	}

	start, end = rowkey.Window(entity, earliest, latest)
	return start, end, nil
}

func (d *Descriptor) field(row pipeline.Row, col string) (any, error) {
	i, err := d.index.InputIndex(col)
	if err != nil {
		return nil, err
	}
	return row.Field(i), nil
}

func (d *Descriptor) timeOf(row pipeline.Row, marker string) (time.Time, error) {
	col, err := d.firstContaining(marker)
	if err != nil {
		return time.Time{}, err
	}
	v, err := d.field(row, col)
	if err != nil {
		return time.Time{}, err
	}
	t, ok := TimeValue(v)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrMissingValue, col)
	}
	return t, nil
}

func (d *Descriptor) durationOf(row pipeline.Row) (time.Duration, error) {
	col, err := d.firstContaining(d.conv.Duration)
	if err != nil {
		return 0, err
	}
	v, err := d.field(row, col)
	if err != nil {
		return 0, err
	}
	switch dv := v.(type) {
	case time.Duration:
		if dv > 0 {
			return dv, nil
		}
	case string:
		if dur, err := ParseRetention(dv); err == nil {
			return dur, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrMissingValue, col)
}

// CellValue renders a field value the way it is stored in a cell.
func CellValue(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case []byte:
		return string(tv)
	case time.Time:
		return tv.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return tv.String()
	}
	return fmt.Sprint(v)
}

// TimeValue interprets v as a point in time. Integers and numeric strings are
// Unix milliseconds; other strings must be RFC 3339.
func TimeValue(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv, !tv.IsZero()
	case int64:
		return time.UnixMilli(tv), true
	case int:
		return time.UnixMilli(int64(tv)), true
	case float64:
		return time.UnixMilli(int64(tv)), true
	case string:
		if ms, err := strconv.ParseInt(tv, 10, 64); err == nil {
			return time.UnixMilli(ms), true
		}
		if t, err := time.Parse(time.RFC3339Nano, tv); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
