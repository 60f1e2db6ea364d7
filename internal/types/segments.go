package types

import (
	"encoding/json"
	"fmt"
)

// Segment is a half-open millisecond interval [Start, Stop) — the portion
// of a room's original timeline that survived the commit engine's cuts.
type Segment struct {
	Start int64
	Stop  int64
}

// Segments is an ordered list of half-open millisecond intervals. It
// serializes as an array of two-element arrays, matching the donor
// original's "milliseconds_bound_tuples" wire convention.
type Segments []Segment

// MarshalJSON emits each segment as a [start, stop) pair.
func (s Segments) MarshalJSON() ([]byte, error) {
	out := make([][2]int64, len(s))
	for i, seg := range s {
		out[i] = [2]int64{seg.Start, seg.Stop}
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses an array of [start, stop) pairs, validating that
// each pair is non-decreasing (start <= stop).
func (s *Segments) UnmarshalJSON(data []byte) error {
	var raw [][2]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Segments, len(raw))
	for i, pair := range raw {
		if pair[0] > pair[1] {
			return fmt.Errorf("types: segment %d has start %d > stop %d", i, pair[0], pair[1])
		}
		out[i] = Segment{Start: pair[0], Stop: pair[1]}
	}
	*s = out
	return nil
}

// TotalDuration returns the sum of every segment's duration in milliseconds.
func (s Segments) TotalDuration() int64 {
	var total int64
	for _, seg := range s {
		total += seg.Stop - seg.Start
	}
	return total
}
