// Package rowkey builds the composite row keys documents are stored under.
//
// A key is "<entity>#<inverted millis>", where inverted millis is
// math.MaxInt64 minus the Unix millisecond timestamp, zero-padded to 19 digits.
// Ascending key order is therefore descending time order within an entity.
package rowkey

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Separator splits the entity from the inverted timestamp.
const Separator = '#'

const timestampWidth = 19

// ErrMalformedKey is returned when a key has no entity/timestamp separator.
var ErrMalformedKey = errors.New("featurewindow: malformed row key")

// Encode returns the row key for entity at t. Times before the Unix epoch
// are stored as the epoch.
func Encode(entity string, t time.Time) []byte {
	inverted := math.MaxInt64 - max(t.UnixMilli(), 0)
	return []byte(fmt.Sprintf("%s%c%0*d", entity, Separator, timestampWidth, inverted))
}

// Partition returns the entity part of key. Entities may contain the
// separator themselves; only the last one delimits the timestamp.
func Partition(key []byte) (string, error) {
	i := bytes.LastIndexByte(key, Separator)
	if i < 0 || len(key)-i-1 != timestampWidth {
		return "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return string(key[:i]), nil
}

// Time decodes the timestamp carried by key.
func Time(key []byte) (time.Time, error) {
	i := bytes.LastIndexByte(key, Separator)
	if i < 0 || len(key)-i-1 != timestampWidth {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	inverted, err := strconv.ParseInt(string(key[i+1:]), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return time.UnixMilli(math.MaxInt64 - inverted), nil
}

// Window returns the [start, end) key range covering every document of entity
// written between earliest and latest, both inclusive.
func Window(entity string, earliest, latest time.Time) (start, end []byte) {
	return Encode(entity, latest), Encode(entity, earliest.Add(-time.Millisecond))
}
