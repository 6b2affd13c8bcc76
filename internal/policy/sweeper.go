package policy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs Engine.Sweep on a cron schedule so TTL eviction is explicit
// rather than relying on the lazy pruning inside Validate alone.
type Sweeper struct {
	Engine   *Engine
	Schedule string
	Now      func() time.Time
	Parser   *cron.Parser
}

const defaultSweepSchedule = "*/5 * * * *"

func NewSweeper(engine *Engine) *Sweeper {
	return &Sweeper{Engine: engine}
}

// Run blocks until ctx is done, sweeping at every schedule activation.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.Engine == nil {
		return errors.New("engine required")
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Parser == nil {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		s.Parser = &parser
	}
	spec := s.Schedule
	if spec == "" {
		spec = defaultSweepSchedule
	}
	sched, err := s.Parser.Parse(spec)
	if err != nil {
		return err
	}
	for {
		next := sched.Next(s.Now())
		timer := time.NewTimer(next.Sub(s.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.RunOnce()
		}
	}
}

// RunOnce performs a single sweep and logs what it dropped.
func (s *Sweeper) RunOnce() (cacheRemoved, callsPruned int) {
	if s.Engine == nil {
		return 0, 0
	}
	cacheRemoved, callsPruned = s.Engine.Sweep()
	if cacheRemoved > 0 || callsPruned > 0 {
		slog.Debug("policy sweep",
			"cache_removed", cacheRemoved,
			"calls_pruned", callsPruned)
	}
	return cacheRemoved, callsPruned
}
