package stream

import (
	"strconv"

	"github.com/aws/aws-lambda-go/events"
)

// attrValue converts a stream image attribute to a row field value.
// Unsupported types yield nil.
func attrValue(v events.DynamoDBAttributeValue) any {
	switch v.DataType() {
	case events.DataTypeString:
		return v.String()
	case events.DataTypeNumber:
		return numberValue(v.Number())
	case events.DataTypeBinary:
		return v.Binary()
	case events.DataTypeBoolean:
		return v.Boolean()
	case events.DataTypeStringSet:
		return v.StringSet()
	}
	return nil
}

// numberValue parses a number as int64 when integral, float64 otherwise, and
// keeps the text when it is neither.
func numberValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
