package types

import "errors"

var (
	errAdditionHasEventID    = errors.New("types: addition change must not reference an event_id")
	errAdditionMissingFields = errors.New("types: addition change requires event_kind, event_occurred_at and event_created_by")
	errChangeMissingEventID  = errors.New("types: modification/removal change requires event_id")
	errUnknownChangeKind     = errors.New("types: unknown change kind")
)
