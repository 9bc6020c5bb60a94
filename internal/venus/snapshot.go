package venus

import (
	"fmt"
	"sort"
)

// Well-known snapshot fields.
const (
	FieldSOC       = "soc"
	FieldMode      = "mode"
	FieldTimestamp = "timestamp"
)

// Snapshot is a set of named telemetry values as decoded from the device.
// Numbers decode as float64.
type Snapshot map[string]any

// Empty reports whether the snapshot has no fields.
func (s Snapshot) Empty() bool {
	return len(s) == 0
}

// Has reports whether field is present (with any value, including null).
func (s Snapshot) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// Require returns ErrMalformedResponse naming every missing field.
func (s Snapshot) Require(fields ...string) error {
	var missing []string
	for _, f := range fields {
		if !s.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing field(s) %v", ErrMalformedResponse, missing)
	}
	return nil
}

// Mode returns the "mode" field as a string, or "" if absent.
func (s Snapshot) Mode() string {
	m, _ := s[FieldMode].(string)
	return m
}

// Number returns a numeric field.
func (s Snapshot) Number(field string) (float64, bool) {
	v, ok := s[field].(float64)
	return v, ok
}

// Clone returns a shallow copy. A nil snapshot clones to an empty one.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// mergeMissing copies fields from other that s does not already have.
func (s Snapshot) mergeMissing(other Snapshot) {
	for k, v := range other {
		if _, exists := s[k]; !exists {
			s[k] = v
		}
	}
}
