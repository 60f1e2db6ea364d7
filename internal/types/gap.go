package types

// Gap is a cut interval in nanoseconds produced by the gap analyzer (C3).
// Gaps are not guaranteed disjoint when user-supplied cuts overlap; the
// commit engine is responsible for correctly squeezing overlapping gaps.
type Gap struct {
	Start int64
	Stop  int64
}
