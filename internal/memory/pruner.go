package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Pruner deletes memories older than a retention window on a cron schedule.
type Pruner struct {
	store     *SQLStore
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger
	now       func() time.Time
}

// NewPruner validates schedule (standard five-field cron, optional seconds,
// or a descriptor such as "@daily") and returns a stopped pruner.
func NewPruner(store *SQLStore, schedule string, retention time.Duration, logger *slog.Logger) (*Pruner, error) {
	if store == nil {
		return nil, errors.New("memory: pruner requires a store")
	}
	if retention <= 0 {
		return nil, errors.New("memory: retention must be positive")
	}
	schedule = strings.TrimSpace(schedule)
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid prune schedule: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pruner{
		store:     store,
		retention: retention,
		cron:      cron.New(cron.WithParser(cronParser)),
		logger:    logger.With("component", "memory_pruner"),
		now:       time.Now,
	}
	p.cron.Schedule(sched, cron.FuncJob(func() {
		if _, err := p.PruneOnce(context.Background()); err != nil {
			p.logger.Warn("memory prune failed", "error", err)
		}
	}))
	return p, nil
}

// Start begins running the schedule in the background.
func (p *Pruner) Start() {
	p.cron.Start()
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}

// PruneOnce deletes entries older than the retention window.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("pruned memories", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}
