// Package eventbus is the broadcast transport behind §6's "notifications
// are broadcast to audiences/{audience}/events or rooms/{room_id}/events"
// requirement: a thin wrapper over a NATS JetStream publish handle. Adapted
// from the donor's internal/eventbus.Bus, trimmed to the publish-only
// surface this service needs — the donor's in-process hook-dispatch chain
// (Handler/Register/Dispatch, and its concrete SessionStart/PreToolUse/
// OddJobs/mail-nudge handlers) served Claude Code's own agent hook system
// and has no SPEC_FULL.md component to attach to.
package eventbus

import (
	"log"
	"sync"

	"github.com/nats-io/nats.go"
)

// Bus publishes pre-encoded JSON payloads to NATS JetStream subjects.
type Bus struct {
	js nats.JetStreamContext
	mu sync.RWMutex
}

// New creates a new, unconfigured event bus. PublishRaw is a silent no-op
// until SetJetStream is called.
func New() *Bus {
	return &Bus{}
}

// SetJetStream attaches a JetStream context for event publishing.
func (b *Bus) SetJetStream(js nats.JetStreamContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.js = js
}

// JetStreamEnabled returns true if JetStream publishing is configured.
func (b *Bus) JetStreamEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js != nil
}

// JetStream returns the JetStream context, or nil if not configured.
func (b *Bus) JetStream() nats.JetStreamContext {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js
}

// PublishRaw publishes arbitrary JSON data to a JetStream subject. Returns
// silently if JetStream is not enabled — broadcast is supplementary to a
// request's own response, never a prerequisite for it (the commit/dump
// detached tasks have already succeeded or failed before this is called).
func (b *Bus) PublishRaw(subject string, data []byte) {
	b.mu.RLock()
	js := b.js
	b.mu.RUnlock()

	if js == nil {
		return
	}

	ack, err := js.Publish(subject, data)
	if err != nil {
		log.Printf("eventbus: JetStream publish to %s failed: %v", subject, err)
	} else {
		log.Printf("eventbus: JetStream published to %s (stream=%s seq=%d, %d bytes)",
			subject, ack.Stream, ack.Sequence, len(data))
	}
}
