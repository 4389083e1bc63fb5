// Package schema maps declared column names to row positions and gives them
// roles in the stored document.
//
// # Columns
//
// A [ColumnIndex] is built once from the input and output column lists the
// pipeline declares. A [Descriptor] wraps it with naming [Conventions]: a
// column whose name contains "doc_key" identifies the entity, one containing
// "doc_data" is written as a cell, "rowtime" orders documents in time, and
// "doc_duration", "doc_earliest" and "doc_latest" bound read windows.
//
// # Access patterns
//
// Each [AccessKind] has an [AccessPattern] of mandatory and invalid fields.
// [Validate] certifies the declared columns against it before any store
// component is constructed:
//
//	idx, err := schema.NewColumnIndex(input, output)
//	if err != nil {
//	    return err
//	}
//	pattern := schema.DefaultAccessPattern(schema.KindWrite, schema.DefaultConventions())
//	if err := schema.Validate(pattern, idx.InputColumns()); err != nil {
//	    return err // *ConfigurationError
//	}
//
// # Errors
//
//   - [ErrConfiguration] - schema cannot serve its access pattern
//   - [ErrUnknownColumn] - column lookup outside the declared lists
//   - [ErrDuplicateColumn] - a list declares a name twice
//   - [ErrMissingValue] - a row lacks a value the key or window needs
package schema
