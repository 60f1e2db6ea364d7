package types

// Attribute closes over the distilled spec's open question of whether
// `pinned`/`deleted` should be an enumerated type. The wire representation
// stays a plain JSON string so external clients are unaffected.
type Attribute string

const (
	// AttributeNone is the zero value: no attribute set.
	AttributeNone Attribute = ""
	// AttributePinned marks an event as pinned, a purely informational tag.
	AttributePinned Attribute = "pinned"
	// AttributeDeleted tombstones an event: it is excluded from set-state
	// reconstruction and is a vacuum candidate once old enough.
	AttributeDeleted Attribute = "deleted"
)

// IsDeleted reports whether the attribute marks an event as tombstoned.
func (a Attribute) IsDeleted() bool {
	return a == AttributeDeleted
}
