package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/fluxroom/timeline/internal/storage"
	"github.com/fluxroom/timeline/internal/types"
)

// eventsDumpBucketPrefix mirrors the donor's "eventsdump.{audience}"
// bucket naming (dump_events.rs: "s3://eventsdump.{audience}/{room_id}.json").
const eventsDumpBucketPrefix = "eventsdump"

// DumpRoomEvents serializes room's non-tombstoned event log as
// newline-delimited JSON and persists it under a deterministic key, per
// §6A's supplemented room.dump_events feature. Returns the object's URI.
func DumpRoomEvents(ctx context.Context, store storage.EventStore, objects Store, room *types.Room) (string, error) {
	events, err := store.ListAllByRoom(ctx, room.ID)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if e.Attribute == types.AttributeDeleted {
			continue
		}
		if err := enc.Encode(e); err != nil {
			return "", fmt.Errorf("objectstore: encode event %s: %w", e.ID, err)
		}
	}

	bucket := fmt.Sprintf("%s.%s", eventsDumpBucketPrefix, room.Audience)
	key := fmt.Sprintf("%s.json", room.ID)
	return objects.Put(ctx, bucket, key, buf.Bytes())
}
