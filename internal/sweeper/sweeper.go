// Package sweeper provides scheduled cleanup of stale conversations.
//
// Conversations idle past their flow's session TTL are deleted so a
// returning user starts fresh at the main menu instead of resuming a
// stale state.
package sweeper

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowdesk/flowdesk/internal/store"
)

// DefaultSchedule runs the sweep every 15 minutes.
const DefaultSchedule = "*/15 * * * *"

// DefaultMaxIdle is the expiry applied when no flow configures a session TTL.
const DefaultMaxIdle = 24 * time.Hour

// Sweeper deletes expired conversations on a cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	store   store.ConversationStore
	maxIdle time.Duration
}

// New creates a sweeper over the given store. maxIdle <= 0 selects
// DefaultMaxIdle.
func New(st store.ConversationStore, maxIdle time.Duration) *Sweeper {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Sweeper{cron: c, store: st, maxIdle: maxIdle}
}

// Start schedules the sweep. An empty schedule selects DefaultSchedule.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("Sweeper started", "schedule", schedule, "max_idle", s.maxIdle)
	return nil
}

// Sweep deletes conversations idle past the expiry. Exposed for tests
// and manual runs.
func (s *Sweeper) Sweep() {
	cutoff := time.Now().Add(-s.maxIdle)
	removed, err := s.store.DeleteExpired(cutoff)
	if err != nil {
		slog.Error("Sweeper sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Sweeper removed expired conversations", "count", removed, "cutoff", cutoff)
	}
}

// Stop stops the cron scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
