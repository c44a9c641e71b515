package engine

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically walks all in-flight sessions and splits any that
// have crossed a local midnight, so no session's time silently spans a
// day boundary. Users are processed in small keyset-paginated batches
// under their individual locks; no global lock is ever held, so user
// operations never starve behind a sweep.
type Sweeper struct {
	engine    *Engine
	interval  time.Duration
	batchSize int
	stopChan  chan struct{}
}

func NewSweeper(engine *Engine, interval time.Duration, batchSize int) *Sweeper {
	return &Sweeper{
		engine:    engine,
		interval:  interval,
		batchSize: batchSize,
		stopChan:  make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.loop()
	log.Printf("Expiration sweeper started (interval %s, batch %d)", s.interval, s.batchSize)
}

func (s *Sweeper) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *Sweeper) loop() {
	// Run on startup as well as by interval: the process may have been
	// down across one or more midnights.
	s.SweepAll(context.Background())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.SweepAll(context.Background())
		}
	}
}

// SweepAll pages through every in-flight session and rolls each across
// any overdue midnight boundaries. Per-user failures are logged and
// skipped; the next pass retries them.
func (s *Sweeper) SweepAll(ctx context.Context) {
	after := ""
	for {
		sessions, err := s.engine.sessions.ListInFlight(ctx, after, s.batchSize)
		if err != nil {
			log.Printf("sweeper: list in-flight sessions: %v", err)
			return
		}
		if len(sessions) == 0 {
			return
		}

		for _, sess := range sessions {
			if err := s.engine.SweepUser(ctx, sess.UserID); err != nil {
				log.Printf("sweeper: sweep user %s: %v", sess.UserID, err)
			}
			after = sess.UserID
		}

		if len(sessions) < s.batchSize {
			return
		}
	}
}
