package timelinerpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/apperror"
	"github.com/fluxroom/timeline/internal/authz"
	"github.com/fluxroom/timeline/internal/stateread"
	"github.com/fluxroom/timeline/internal/storage"
	"github.com/fluxroom/timeline/internal/types"
)

// Server dispatches Requests to the method handlers, modeled on the
// donor's Server.handleRequest switch (internal/rpc/server.go) but over
// this service's method set rather than bd's operations.
type Server struct {
	caps Capabilities
}

// NewServer constructs a Server, filling any unset Capabilities with their
// development defaults.
func NewServer(caps Capabilities) *Server {
	return &Server{caps: caps.WithDefaults()}
}

// Handle routes req to its method handler and always returns a Response —
// an unrecognized method yields KindUnknownMethod rather than an error,
// matching §7's propagation policy ("no error is silently swallowed").
func (s *Server) Handle(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodEditionCreate:
		return s.handleEditionCreate(ctx, req)
	case MethodEditionList:
		return s.handleEditionList(ctx, req)
	case MethodEditionDelete:
		return s.handleEditionDelete(ctx, req)
	case MethodEditionCommit:
		return s.handleEditionCommit(ctx, req)
	case MethodEventList:
		return s.handleEventList(ctx, req)
	case MethodStateRead:
		return s.handleStateRead(ctx, req)
	case MethodRoomDumpEvents:
		return s.handleRoomDumpEvents(ctx, req)
	default:
		return errResponse(req.RequestID, apperror.New(apperror.KindUnknownMethod, req.Method, "no handler for this method"))
	}
}

// decode unmarshals req.Payload into v, wrapping a parse failure as
// KindInvalidPayload.
func decode(req Request, v interface{}) error {
	if err := json.Unmarshal(req.Payload, v); err != nil {
		return apperror.Wrap(apperror.KindInvalidPayload, req.Method, err)
	}
	return nil
}

// authorizeRoom performs the single per-request authorization call (§6's
// "Collaborators (out of scope here)": (audience, account, object, action)
// -> authorized duration or error), classifying a refusal as
// KindAccessDenied per §8's "authorization fail-closed" invariant.
func (s *Server) authorizeRoom(ctx context.Context, req Request, room *types.Room, action string) error {
	object := []string{"rooms", room.ID.String()}
	if _, err := s.caps.Authz.Authorize(ctx, room.Audience, req.Account, object, action); err != nil {
		if err == authz.ErrAccessDenied {
			return apperror.New(apperror.KindAccessDenied, req.Method, "access denied")
		}
		return apperror.Wrap(apperror.KindAccessDenied, req.Method, err)
	}
	return nil
}

func (s *Server) getRoom(ctx context.Context, req Request, id uuid.UUID) (*types.Room, error) {
	room, err := s.caps.Store.GetRoom(ctx, id)
	if err != nil {
		return nil, apperror.Classify(req.Method, err)
	}
	return room, nil
}

func (s *Server) handleEditionCreate(ctx context.Context, req Request) Response {
	var args EditionCreateArgs
	if err := decode(req, &args); err != nil {
		return errResponse(req.RequestID, err)
	}
	room, err := s.getRoom(ctx, req, args.RoomID)
	if err != nil {
		return errResponse(req.RequestID, err)
	}
	if err := s.authorizeRoom(ctx, req, room, "update"); err != nil {
		return errResponse(req.RequestID, err)
	}

	edition, err := s.caps.Store.CreateEdition(ctx, &types.Edition{SourceRoomID: room.ID})
	if err != nil {
		return errResponse(req.RequestID, apperror.Classify(req.Method, err))
	}
	return ok(req.RequestID, 201, edition)
}

func (s *Server) handleEditionList(ctx context.Context, req Request) Response {
	var args EditionListArgs
	if err := decode(req, &args); err != nil {
		return errResponse(req.RequestID, err)
	}
	room, err := s.getRoom(ctx, req, args.RoomID)
	if err != nil {
		return errResponse(req.RequestID, err)
	}
	if err := s.authorizeRoom(ctx, req, room, "update"); err != nil {
		return errResponse(req.RequestID, err)
	}

	limit := args.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	editions, err := s.caps.Store.ListEditions(ctx, room.ID, args.LastCreatedAt, limit)
	if err != nil {
		return errResponse(req.RequestID, apperror.Classify(req.Method, err))
	}
	return ok(req.RequestID, 200, editions)
}

func (s *Server) handleEditionDelete(ctx context.Context, req Request) Response {
	var args EditionDeleteArgs
	if err := decode(req, &args); err != nil {
		return errResponse(req.RequestID, err)
	}
	edition, err := s.caps.Store.GetEdition(ctx, args.ID)
	if err != nil {
		return errResponse(req.RequestID, apperror.Classify(req.Method, err))
	}
	room, err := s.getRoom(ctx, req, edition.SourceRoomID)
	if err != nil {
		return errResponse(req.RequestID, err)
	}
	if err := s.authorizeRoom(ctx, req, room, "update"); err != nil {
		return errResponse(req.RequestID, err)
	}

	if err := s.caps.Store.DeleteEdition(ctx, args.ID); err != nil {
		return errResponse(req.RequestID, apperror.Classify(req.Method, err))
	}
	return ok(req.RequestID, 200, edition)
}

// handleEditionCommit validates the edition and room synchronously, then
// launches the actual commit as a detached task (§9: "Commit and dump run
// outside the request's response path"), returning 202 immediately.
func (s *Server) handleEditionCommit(ctx context.Context, req Request) Response {
	var args EditionCommitArgs
	if err := decode(req, &args); err != nil {
		return errResponse(req.RequestID, err)
	}
	edition, err := s.caps.Store.GetEdition(ctx, args.ID)
	if err != nil {
		return errResponse(req.RequestID, apperror.Classify(req.Method, err))
	}
	room, err := s.getRoom(ctx, req, edition.SourceRoomID)
	if err != nil {
		return errResponse(req.RequestID, err)
	}
	if err := s.authorizeRoom(ctx, req, room, "update"); err != nil {
		return errResponse(req.RequestID, err)
	}

	go s.runCommit(edition, room)
	return ok(req.RequestID, 202, nil)
}

func (s *Server) handleEventList(ctx context.Context, req Request) Response {
	var args EventListArgs
	if err := decode(req, &args); err != nil {
		return errResponse(req.RequestID, err)
	}
	room, err := s.getRoom(ctx, req, args.RoomID)
	if err != nil {
		return errResponse(req.RequestID, err)
	}
	if err := s.authorizeRoom(ctx, req, room, "list"); err != nil {
		return errResponse(req.RequestID, err)
	}

	var cursor *storage.ListCursor
	if args.LastID != nil && args.LastOccurredAt != nil {
		cursor = &storage.ListCursor{OccurredAt: *args.LastOccurredAt, ID: *args.LastID}
	}
	filter := storage.ListFilter{Kind: args.Type}
	limit := args.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	events, err := s.caps.Store.List(ctx, room.ID, filter, eventListDirection(args.Direction), limit, cursor)
	if err != nil {
		return errResponse(req.RequestID, apperror.Classify(req.Method, err))
	}
	return ok(req.RequestID, 200, events)
}

func (s *Server) handleStateRead(ctx context.Context, req Request) Response {
	var args StateReadArgs
	if err := decode(req, &args); err != nil {
		return errResponse(req.RequestID, err)
	}
	room, err := s.getRoom(ctx, req, args.RoomID)
	if err != nil {
		return errResponse(req.RequestID, err)
	}
	if err := s.authorizeRoom(ctx, req, room, "list"); err != nil {
		return errResponse(req.RequestID, err)
	}

	resp, err := stateread.Read(ctx, s.caps.Store, room, stateread.Request{
		RoomID:     args.RoomID,
		Sets:       args.Sets,
		Attribute:  args.Attribute,
		OccurredAt: args.OccurredAt,
		Limit:      args.Limit,
	})
	if err != nil {
		return errResponse(req.RequestID, err)
	}
	return ok(req.RequestID, 200, resp)
}

// handleRoomDumpEvents validates and authorizes synchronously, then
// launches the dump itself as a detached task, mirroring handleEditionCommit.
func (s *Server) handleRoomDumpEvents(ctx context.Context, req Request) Response {
	var args RoomDumpEventsArgs
	if err := decode(req, &args); err != nil {
		return errResponse(req.RequestID, err)
	}
	room, err := s.getRoom(ctx, req, args.ID)
	if err != nil {
		return errResponse(req.RequestID, err)
	}
	if err := s.authorizeRoom(ctx, req, room, "dump_events"); err != nil {
		return errResponse(req.RequestID, err)
	}
	if s.caps.Objects == nil {
		return errResponse(req.RequestID, apperror.New(apperror.KindNoS3Client, req.Method, "object store not configured"))
	}

	go s.runDump(room)
	return ok(req.RequestID, 202, nil)
}

func roomEventsSubject(roomID uuid.UUID) string {
	return fmt.Sprintf("rooms/%s/events", roomID)
}
