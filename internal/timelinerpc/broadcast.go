package timelinerpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fluxroom/timeline/internal/apperror"
	"github.com/fluxroom/timeline/internal/objectstore"
	"github.com/fluxroom/timeline/internal/types"
)

// commitBroadcast is the wire shape of an edition.commit notification
// (§6's "Broadcast payload shape for edition commit"): a success variant
// carrying the committed room and its modified segments, or an error
// variant carrying a problem document. Fields are tagged omitempty so one
// struct serves both variants without a custom MarshalJSON.
type commitBroadcast struct {
	Status           string                    `json:"status"`
	Tags             map[string]any            `json:"tags,omitempty"`
	SourceRoomID     string                    `json:"source_room_id,omitempty"`
	CommittedRoomID  string                    `json:"committed_room_id,omitempty"`
	ModifiedSegments types.Segments            `json:"modified_segments,omitempty"`
	Error            *apperror.ProblemDocument `json:"error,omitempty"`
}

// runCommit executes §4.4's commit algorithm as a detached task (§9:
// launched with its own background context, never the request's),
// broadcasting the result to the source room's event subject.
func (s *Server) runCommit(edition *types.Edition, room *types.Room) {
	ctx := context.Background()
	destination, segments, err := s.caps.Engine.Commit(ctx, edition, room)

	payload := commitBroadcast{Tags: room.Tags, SourceRoomID: room.ID.String()}
	if err != nil {
		payload.Status = "error"
		appErr := apperror.Classify("edition.commit", err)
		problem := appErr.Problem()
		payload.Error = &problem
		s.caps.Logger.Printf("timelinerpc: commit of edition %s failed: %v", edition.ID, err)
	} else {
		payload.Status = "success"
		payload.CommittedRoomID = destination.ID.String()
		payload.ModifiedSegments = segments
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.caps.Logger.Printf("timelinerpc: encode commit broadcast for edition %s: %v", edition.ID, err)
		return
	}
	s.caps.Bus.PublishRaw(roomEventsSubject(room.ID), data)
}

// dumpBroadcast is the wire shape of a room.dump_events notification: §6
// names only "202 + later broadcast with S3 URI", so this expansion
// follows the same success/error shape as commitBroadcast.
type dumpBroadcast struct {
	Status string                    `json:"status"`
	Tags   map[string]any            `json:"tags,omitempty"`
	RoomID string                    `json:"room_id,omitempty"`
	S3URI  string                    `json:"s3_uri,omitempty"`
	Error  *apperror.ProblemDocument `json:"error,omitempty"`
}

// runDump executes the supplemented room.dump_events feature as a
// detached task, broadcasting the resulting object URI.
func (s *Server) runDump(room *types.Room) {
	ctx := context.Background()
	uri, err := objectstore.DumpRoomEvents(ctx, s.caps.Store, s.caps.Objects, room)

	payload := dumpBroadcast{Tags: room.Tags, RoomID: room.ID.String()}
	if err != nil {
		payload.Status = "error"
		appErr := apperror.Classify("room.dump_events", err)
		problem := appErr.Problem()
		payload.Error = &problem
		s.caps.Logger.Printf("timelinerpc: dump of room %s failed: %v", room.ID, err)
	} else {
		payload.Status = "success"
		payload.S3URI = uri
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.caps.Logger.Printf("timelinerpc: encode dump broadcast for room %s: %v", room.ID, err)
		return
	}
	s.caps.Bus.PublishRaw(fmt.Sprintf("audiences/%s/events", room.Audience), data)
}
