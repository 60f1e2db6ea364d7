// Package vacuum implements the periodic maintenance sweep (C6): history
// pruning, stale-tombstone pruning, and orphan destination room reclamation.
package vacuum

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fluxroom/timeline/internal/storage"
	"github.com/fluxroom/timeline/internal/svcconfig"
)

// roomSweepConcurrency bounds how many rooms' history/tombstone pruning run
// at once, so a pass over many rooms doesn't open one connection per room.
const roomSweepConcurrency = 4

// Sweeper runs one pass of §4.6 over every room with preserve_history=false,
// plus the cross-room orphan-destination-room sweep.
type Sweeper struct {
	Store  storage.VacuumStore
	Config svcconfig.VacuumConfig
}

// New constructs a Sweeper.
func New(store storage.VacuumStore, cfg svcconfig.VacuumConfig) *Sweeper {
	return &Sweeper{Store: store, Config: cfg}
}

// Run ticks at Config.Interval until ctx is cancelled, logging and
// continuing past per-pass errors — a stuck pass must not stop future ones.
// Mirrors the donor's ticker-driven daemon sync loop (cmd/bd/daemon.go).
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Pass(ctx); err != nil {
				log.Printf("vacuum: pass failed: %v", err)
			}
		}
	}
}

// Pass executes one full sweep: per-room history/tombstone pruning for
// every room with preserve_history=false, then the orphan destination room
// reclamation (§4.6).
func (s *Sweeper) Pass(ctx context.Context) error {
	rooms, err := s.Store.RoomsToVacuum(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	historyCutoff := now.Add(-s.Config.MaxHistoryLifetime)
	deletedCutoff := now.Add(-s.Config.MaxDeletedLifetime)

	var deleted int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(roomSweepConcurrency)
	for _, roomID := range rooms {
		roomID := roomID
		g.Go(func() error {
			surplus, err := s.Store.HistorySurplus(gctx, roomID, s.Config.MaxHistorySize, historyCutoff)
			if err != nil {
				return err
			}
			n, err := s.deleteEvents(gctx, surplus)
			if err != nil {
				return err
			}
			atomic.AddInt64(&deleted, int64(n))

			stale, err := s.Store.StaleTombstones(gctx, roomID, deletedCutoff)
			if err != nil {
				return err
			}
			n, err = s.deleteEvents(gctx, stale)
			if err != nil {
				return err
			}
			atomic.AddInt64(&deleted, int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	orphans, err := s.Store.OrphanDestinationRooms(ctx, historyCutoff)
	if err != nil {
		return err
	}
	var droppedRooms int
	if len(orphans) > 0 {
		droppedRooms, err = s.Store.DeleteRooms(ctx, orphans)
		if err != nil {
			return err
		}
	}

	if deleted > 0 || droppedRooms > 0 {
		log.Printf("vacuum: pass complete, rooms=%d events_deleted=%d orphan_rooms_deleted=%d",
			len(rooms), deleted, droppedRooms)
	}
	return nil
}

func (s *Sweeper) deleteEvents(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.Store.DeleteEvents(ctx, ids)
}
