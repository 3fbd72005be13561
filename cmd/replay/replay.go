package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"backend-tourguide/internal/navigation"
	"backend-tourguide/internal/shared/geo"
)

type replayOptions struct {
	RouteID string
	UserID  string
	Speed   float64
	Linger  time.Duration
}

// eventPrinter writes each navigation event as one JSON line.
type eventPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *eventPrinter) Broadcast(_ string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprintf(p.out, "%s\n", payload); err != nil {
		log.Printf("replay: write event: %v", err)
	}
}

type waitFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// replay feeds the fixes into a live session, spacing them by their
// timestamps divided by Speed. Dwell timers run on the wall clock, so visits
// only commit when the replay is paced at Speed 1.
func replay(ctx context.Context, mgr *navigation.Manager, fixes []geo.Point, opts replayOptions, wait waitFunc) (navigation.Snapshot, error) {
	defer mgr.Shutdown()

	if _, err := mgr.Start(ctx, opts.RouteID, opts.UserID); err != nil {
		return navigation.Snapshot{}, fmt.Errorf("replay: start session: %w", err)
	}
	s, err := mgr.Get(opts.RouteID, opts.UserID)
	if err != nil {
		return navigation.Snapshot{}, err
	}

	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}
	for i, p := range fixes {
		if i > 0 {
			gap := time.Duration(p.TimestampMillis-fixes[i-1].TimestampMillis) * time.Millisecond
			if err := wait(ctx, time.Duration(float64(gap)/speed)); err != nil {
				return navigation.Snapshot{}, err
			}
		}
		if err := s.Fix(p); err != nil {
			return navigation.Snapshot{}, fmt.Errorf("replay: fix %d: %w", i, err)
		}
	}

	if err := wait(ctx, opts.Linger); err != nil {
		return navigation.Snapshot{}, err
	}
	return s.Snapshot()
}
