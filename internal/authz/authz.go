// Package authz models the out-of-scope authorization collaborator (§6):
// a single call per request of the shape (audience, account, object,
// action) -> authorized duration or refusal.
package authz

import (
	"context"
	"time"
)

// Authorizer is called once per request from within the RPC handler that
// serves it, after the target room has been loaded. Grounded on the donor's
// context.authz().authorize(audience, account_id, object, action) call
// (_examples/original_source/src/app/endpoint/room/dump_events.rs).
type Authorizer interface {
	Authorize(ctx context.Context, audience, account string, object []string, action string) (time.Duration, error)
}

// ErrAccessDenied is returned by an Authorizer that refuses a request; the
// RPC dispatcher classifies it to apperror.KindAccessDenied (§6: "fail
// closed", exactly one 403 response).
var ErrAccessDenied = authzDenied{}

type authzDenied struct{}

func (authzDenied) Error() string { return "authz: access denied" }

// AllowAll is the development stand-in for the real authorization service:
// every request is granted for a fixed duration. It never refuses, so it
// is unsuitable for anything beyond local development and tests.
type AllowAll struct {
	Duration time.Duration
}

// NewAllowAll constructs an AllowAll authorizer with a sensible default
// grant duration.
func NewAllowAll() *AllowAll {
	return &AllowAll{Duration: time.Minute}
}

// Authorize always succeeds.
func (a *AllowAll) Authorize(ctx context.Context, audience, account string, object []string, action string) (time.Duration, error) {
	return a.Duration, nil
}
