package gateway

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Reaper periodically expires overdue pending calls and prunes the request
// dedupe store. It is a no-op companion when the confirmation timeout is
// zero, but still runs to keep the dedupe store bounded.
type Reaper struct {
	cron *cron.Cron
}

// StartReaper schedules expireOverdue on the given cron spec, for example
// "@every 30s".
func (g *Gateway) StartReaper(schedule string) (*Reaper, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		g.expireOverdue(time.Now())
	}); err != nil {
		return nil, fmt.Errorf("schedule reaper %q: %w", schedule, err)
	}
	c.Start()
	slog.Debug("Reaper started", "schedule", schedule)
	return &Reaper{cron: c}, nil
}

// Stop halts the schedule and waits for a running tick to finish.
func (r *Reaper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
