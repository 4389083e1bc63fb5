package schema

import (
	"fmt"

	"github.com/jacentio/featurewindow/pipeline"
)

// ColumnIndex maps column names to their positions in the input and output
// row shapes. Every input column has an input position; a column may be
// absent from the output. It is immutable after construction.
type ColumnIndex struct {
	input  []string
	output []string
	in     map[string]int
	out    map[string]int
}

// NewColumnIndex builds the index from the declared column lists.
func NewColumnIndex(input, output []string) (*ColumnIndex, error) {
	in, err := positions(input)
	if err != nil {
		return nil, err
	}
	out, err := positions(output)
	if err != nil {
		return nil, err
	}
	return &ColumnIndex{
		input:  append([]string(nil), input...),
		output: append([]string(nil), output...),
		in:     in,
		out:    out,
	}, nil
}

func positions(names []string) (map[string]int, error) {
	m := make(map[string]int, len(names))
	for i, name := range names {
		if _, dup := m[name]; dup {
			return nil, &ConfigurationError{
				Fields: []string{name},
				Msg:    fmt.Sprintf("duplicate column %q", name),
				Err:    ErrDuplicateColumn,
			}
		}
		m[name] = i
	}
	return m, nil
}

// InputIndex returns the input position of name.
func (c *ColumnIndex) InputIndex(name string) (int, error) {
	i, ok := c.in[name]
	if !ok {
		return -1, &UnknownColumnError{Name: name}
	}
	return i, nil
}

// OutputIndex returns the output position of name.
func (c *ColumnIndex) OutputIndex(name string) (int, error) {
	i, ok := c.out[name]
	if !ok {
		return -1, &UnknownColumnError{Name: name, Output: true}
	}
	return i, nil
}

// HasInput reports whether name is a declared input column.
func (c *ColumnIndex) HasInput(name string) bool {
	_, ok := c.in[name]
	return ok
}

// HasOutput reports whether name is a declared output column.
func (c *ColumnIndex) HasOutput(name string) bool {
	_, ok := c.out[name]
	return ok
}

// InputColumns returns the declared input columns in order.
func (c *ColumnIndex) InputColumns() []string {
	return append([]string(nil), c.input...)
}

// OutputColumns returns the declared output columns in order.
func (c *ColumnIndex) OutputColumns() []string {
	return append([]string(nil), c.output...)
}

// OutputLen is the arity of output rows.
func (c *ColumnIndex) OutputLen() int {
	return len(c.output)
}

// Project copies every input column that also has an output position into a
// new output row. Output columns without an input counterpart stay nil for
// the operator to fill.
func (c *ColumnIndex) Project(in pipeline.Row) pipeline.Values {
	out := pipeline.NewValues(len(c.output))
	for i, name := range c.input {
		if o, ok := c.out[name]; ok {
			out.SetField(o, in.Field(i))
		}
	}
	return out
}
