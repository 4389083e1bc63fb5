package schema

import (
	"fmt"
	"strings"
)

// AccessKind names a way the schema will be used.
type AccessKind string

const (
	KindWrite         AccessKind = "write"
	KindKeyRangeScan  AccessKind = "scan-by-key"
	KindDataRangeScan AccessKind = "scan-by-range"
)

// ParseAccessKind accepts the configured spelling of an access kind.
func ParseAccessKind(s string) (AccessKind, error) {
	switch k := AccessKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindWrite, KindKeyRangeScan, KindDataRangeScan:
		return k, nil
	}
	return "", &ConfigurationError{Msg: fmt.Sprintf("unknown access kind %q", s)}
}

// Conventions are the reserved substrings that give declared columns their
// role. A column plays a role when its name contains the substring.
type Conventions struct {
	Key            string `yaml:"key"`
	Data           string `yaml:"data"`
	Duration       string `yaml:"duration"`
	Earliest       string `yaml:"earliest"`
	Latest         string `yaml:"latest"`
	EventTimestamp string `yaml:"event_timestamp"`
	Rowtime        string `yaml:"rowtime"`
}

// DefaultConventions returns the standard reserved names.
func DefaultConventions() Conventions {
	return Conventions{
		Key:            "doc_key",
		Data:           "doc_data",
		Duration:       "doc_duration",
		Earliest:       "doc_earliest",
		Latest:         "doc_latest",
		EventTimestamp: "event_timestamp",
		Rowtime:        "rowtime",
	}
}

// withDefaults fills empty names from DefaultConventions.
func (c Conventions) withDefaults() Conventions {
	d := DefaultConventions()
	if c.Key == "" {
		c.Key = d.Key
	}
	if c.Data == "" {
		c.Data = d.Data
	}
	if c.Duration == "" {
		c.Duration = d.Duration
	}
	if c.Earliest == "" {
		c.Earliest = d.Earliest
	}
	if c.Latest == "" {
		c.Latest = d.Latest
	}
	if c.EventTimestamp == "" {
		c.EventTimestamp = d.EventTimestamp
	}
	if c.Rowtime == "" {
		c.Rowtime = d.Rowtime
	}
	return c
}

// AccessPattern carries the column constraints of one access kind.
type AccessPattern struct {
	Kind AccessKind

	// MandatoryFields must each be contained in some declared column name.
	MandatoryFields []string

	// InvalidFields must not be contained in any declared column name.
	InvalidFields []string
}

// DefaultAccessPattern returns the constraints of kind under conv.
func DefaultAccessPattern(kind AccessKind, conv Conventions) AccessPattern {
	conv = conv.withDefaults()
	switch kind {
	case KindWrite:
		return AccessPattern{
			Kind:            kind,
			MandatoryFields: []string{conv.Key, conv.Data, conv.EventTimestamp, conv.Rowtime},
			InvalidFields:   []string{conv.Duration, conv.Earliest, conv.Latest},
		}
	case KindDataRangeScan:
		return AccessPattern{
			Kind:            kind,
			MandatoryFields: []string{conv.Key, conv.Data, conv.EventTimestamp, conv.Rowtime},
		}
	case KindKeyRangeScan:
		return AccessPattern{
			Kind:            kind,
			MandatoryFields: []string{conv.Key, conv.EventTimestamp, conv.Rowtime},
			InvalidFields:   []string{conv.Data},
		}
	}
	return AccessPattern{Kind: kind}
}

func (p AccessPattern) String() string {
	return string(p.Kind)
}

// Validate checks declared against p. Missing mandatory fields are reported
// before invalid ones when both checks fail.
func Validate(p AccessPattern, declared []string) error {
	var missing, present []string
	for _, field := range p.MandatoryFields {
		if field == "" {
			continue
		}
		if !anyContains(declared, field) {
			missing = append(missing, field)
		}
	}
	for _, field := range p.InvalidFields {
		if field == "" {
			continue
		}
		if anyContains(declared, field) {
			present = append(present, field)
		}
	}

	if len(missing) > 0 {
		return missingFieldsError(p.Kind, missing)
	}
	if len(present) > 0 {
		return invalidFieldsError(p.Kind, present)
	}
	return nil
}

func anyContains(columns []string, field string) bool {
	for _, c := range columns {
		if strings.Contains(c, field) {
			return true
		}
	}
	return false
}
