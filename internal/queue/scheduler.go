package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler drives the background sweep on a fixed interval. Ticks are
// single-flight: if a sweep is still running when the next tick fires,
// that tick is skipped rather than run concurrently.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	log      *logrus.Logger

	hooks   []func(context.Context)
	running atomic.Bool
}

func NewScheduler(manager *Manager, interval time.Duration, log *logrus.Logger) *Scheduler {
	// The manager's ETA estimate is denominated in ticks; keep it in
	// step with the interval actually configured here.
	manager.mu.Lock()
	manager.tick = interval
	manager.mu.Unlock()
	return &Scheduler{manager: manager, interval: interval, log: log}
}

// AddHook appends extra periodic work to the tick, run after the queue
// sweep. Used for registry maintenance such as evicting settled
// sessions. Not safe to call after Run has started.
func (s *Scheduler) AddHook(h func(context.Context)) {
	s.hooks = append(s.hooks, h)
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep if no other tick is in flight.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("sweep still running, tick skipped")
		return
	}
	defer s.running.Store(false)

	s.manager.SweepOnce(ctx)
	for _, h := range s.hooks {
		h(ctx)
	}
}
