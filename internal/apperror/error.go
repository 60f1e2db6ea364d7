// Package apperror defines the error kinds propagated to the request/response
// channel, mirroring the donor project's sentinel-error-plus-wrap pattern
// (internal/storage/sqlite/errors.go, internal/rpc/errors.go) but closed
// over the distilled specification's §7 error table.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is a closed set of error kinds, each carrying the status code and
// problem-document title used when the error reaches a client.
type Kind string

const (
	KindRoomNotFound         Kind = "room_not_found"
	KindEditionNotFound      Kind = "edition_not_found"
	KindInvalidPayload       Kind = "invalid_payload"
	KindInvalidStateSets     Kind = "invalid_state_sets"
	KindInvalidRoomTime      Kind = "invalid_room_time"
	KindAccessDenied         Kind = "access_denied"
	KindDBQueryFailed        Kind = "db_query_failed"
	KindSerializationFailed  Kind = "serialization_failed"
	KindPublishFailed        Kind = "publish_failed"
	KindEditionCommitFailed  Kind = "edition_commit_task_failed"
	KindNoS3Client           Kind = "no_s3_client"
	KindUnknownMethod        Kind = "unknown_method"
)

// Status returns the HTTP-ish status code associated with a Kind. Kinds
// that are broadcast-only (no synchronous response) return 0.
func (k Kind) Status() int {
	switch k {
	case KindRoomNotFound, KindEditionNotFound, KindUnknownMethod:
		return 404
	case KindInvalidPayload:
		return 400
	case KindInvalidStateSets, KindInvalidRoomTime:
		return 422
	case KindAccessDenied:
		return 403
	case KindDBQueryFailed, KindSerializationFailed, KindPublishFailed:
		return 500
	case KindNoS3Client:
		return 501
	case KindEditionCommitFailed:
		return 0
	default:
		return 500
	}
}

// Expected reports whether the kind is one of the "expected" errors
// (404/403/422) that the propagation policy says must not be forwarded to
// the error-reporting collaborator.
func (k Kind) Expected() bool {
	switch k.Status() {
	case 404, 403, 422:
		return true
	default:
		return false
	}
}

// Error is the application error carried through the service: a Kind plus
// a human title/detail and an optional wrapped cause.
type Error struct {
	Kind   Kind
	Title  string
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// ProblemDocument is the wire shape for an error response, per §6.
type ProblemDocument struct {
	Kind   Kind   `json:"kind"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// Problem converts an Error to its wire ProblemDocument.
func (e *Error) Problem() ProblemDocument {
	return ProblemDocument{Kind: e.Kind, Title: e.Title, Detail: e.Detail}
}

// New constructs an Error of the given kind.
func New(kind Kind, title, detail string) *Error {
	return &Error{Kind: kind, Title: title, Detail: detail}
}

// Wrap constructs an Error of the given kind wrapping a lower-level cause,
// following the donor's `fmt.Errorf("%s: %w", op, err)` convention but
// keeping the cause machine-inspectable via errors.Unwrap/errors.As.
func Wrap(kind Kind, title string, cause error) *Error {
	return &Error{Kind: kind, Title: title, Detail: cause.Error(), Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, and
// KindDBQueryFailed otherwise — the default assumed by callers that only
// know a storage call failed without a more specific classification.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindDBQueryFailed
}

// Sentinel errors for conditions that storage-layer code raises directly;
// handlers translate these into *Error via Classify.
var (
	ErrRoomNotFound    = errors.New("apperror: room not found")
	ErrEditionNotFound = errors.New("apperror: edition not found")
	ErrEventNotFound   = errors.New("apperror: event not found")
	ErrUnclosedCut     = errors.New("apperror: unclosed cut at end of input")
	ErrNestedCutUnderflow = errors.New("apperror: cut-stop with no matching cut-start")
)

// Classify maps a lower-level sentinel error to its Kind, falling back to
// KindDBQueryFailed for anything unrecognized. op is used as the Title.
func Classify(op string, err error) *Error {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return New(KindRoomNotFound, op, err.Error())
	case errors.Is(err, ErrEditionNotFound):
		return New(KindEditionNotFound, op, err.Error())
	case errors.Is(err, ErrUnclosedCut), errors.Is(err, ErrNestedCutUnderflow):
		return New(KindInvalidRoomTime, op, err.Error())
	default:
		return Wrap(KindDBQueryFailed, op, err)
	}
}
