package reconcile

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
)

type runner interface {
	Run(ctx context.Context, ids []string) (*RunReport, error)
}

// Poller triggers a run every interval until its context ends. A failed run
// is only logged; the next tick is the retry.
type Poller struct {
	runner   runner
	interval time.Duration
}

func NewPoller(r runner, interval time.Duration) *Poller {
	return &Poller{runner: r, interval: interval}
}

// Start blocks until ctx is cancelled. Runs never overlap within one poller.
func (p *Poller) Start(ctx context.Context) {
	if p.interval <= 0 {
		log.Info("reconcile poller disabled")
		return
	}

	log.Infof("reconcile poller started, interval %s", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			log.Info("reconcile poller stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if _, err := p.runner.Run(ctx, nil); err != nil {
		log.Errorf("scheduled reconcile run failed: %v", err)
	}
}
