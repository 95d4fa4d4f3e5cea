package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner periodically deletes finished tasks older than a retention TTL.
type Pruner struct {
	store  Store
	ttl    time.Duration
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time
}

// NewPruner schedules pruning of store on a cron spec such as "@every 10m".
// Call Start to begin and Stop to end.
func NewPruner(store Store, ttl time.Duration, schedule string, logger *slog.Logger) (*Pruner, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("pruner: ttl must be positive, got %s", ttl)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pruner{
		store:  store,
		ttl:    ttl,
		cron:   cron.New(),
		logger: logger,
		now:    time.Now,
	}
	if _, err := p.cron.AddFunc(schedule, p.run); err != nil {
		return nil, fmt.Errorf("pruner: schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start runs the schedule in the background.
func (p *Pruner) Start() { p.cron.Start() }

// Stop halts the schedule and waits for a running prune to finish or ctx to end.
func (p *Pruner) Stop(ctx context.Context) {
	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce prunes immediately and returns the number of removed tasks.
func (p *Pruner) RunOnce(ctx context.Context) (int, error) {
	return p.store.Prune(ctx, p.now().Add(-p.ttl))
}

func (p *Pruner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := p.RunOnce(ctx)
	if err != nil {
		p.logger.Error("prune tasks failed", slog.Any("err", err))
		return
	}
	if n > 0 {
		p.logger.Info("pruned finished tasks", slog.Int("count", n), slog.Duration("ttl", p.ttl))
	}
}
