// Package timelinerpc is the request/response envelope and method
// dispatcher described in §6 of the specification, modeled on the donor
// project's internal/rpc/protocol.go Request/Response shape but closed
// over this service's own method set instead of bd's.
package timelinerpc

import (
	"encoding/json"

	"github.com/fluxroom/timeline/internal/apperror"
)

// Method constants, one per row of §6's "Relevant methods" table.
const (
	MethodEditionCreate  = "edition.create"
	MethodEditionList    = "edition.list"
	MethodEditionDelete  = "edition.delete"
	MethodEditionCommit  = "edition.commit"
	MethodEventList      = "event.list"
	MethodStateRead      = "state.read"
	MethodRoomDumpEvents = "room.dump_events"
)

// Request is an incoming method call: a method name, its JSON payload, and
// correlation/identity metadata carried alongside it on the request/
// response channel (§6).
type Request struct {
	Method    string          `json:"method"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
	Account   string          `json:"account,omitempty"`
}

// Response is the synchronous reply to a Request. Status follows §6's
// 200/201/202/400/403/404/422/5xx convention; Problem is populated instead
// of Data when Status indicates failure.
type Response struct {
	Status    int                      `json:"status"`
	Data      json.RawMessage          `json:"data,omitempty"`
	Problem   *apperror.ProblemDocument `json:"problem,omitempty"`
	RequestID string                   `json:"request_id,omitempty"`
}

// ok builds a success Response, marshaling data with the given status.
func ok(requestID string, status int, data interface{}) Response {
	resp := Response{Status: status, RequestID: requestID}
	if data == nil {
		return resp
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return errResponse(requestID, apperror.Wrap(apperror.KindSerializationFailed, "encode response", err))
	}
	resp.Data = encoded
	return resp
}

// errResponse builds a failure Response from an apperror.Error, falling
// back to KindDBQueryFailed for an error that isn't already classified.
func errResponse(requestID string, err error) Response {
	appErr := asAppError(err)
	return Response{
		Status:    appErr.Kind.Status(),
		Problem:   problemPtr(appErr.Problem()),
		RequestID: requestID,
	}
}

func problemPtr(p apperror.ProblemDocument) *apperror.ProblemDocument { return &p }

func asAppError(err error) *apperror.Error {
	if appErr, ok := err.(*apperror.Error); ok {
		return appErr
	}
	return apperror.Wrap(apperror.KindDBQueryFailed, "unclassified", err)
}
