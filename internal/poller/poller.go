// Package poller keeps the register's pending lists fresh. The backend has no
// push channel, so pre-orders and finished tickets are re-fetched on a fixed
// schedule.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/cafe-pos/register/internal/backend"
	"github.com/cafe-pos/register/internal/config"
	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// Refresher is satisfied by *service.Register.
type Refresher interface {
	RefreshPreorders(ctx context.Context) ([]backend.Preorder, error)
	RefreshTickets(ctx context.Context) ([]backend.Comanda, error)
}

type Poller struct {
	scheduler *gocron.Scheduler
	target    Refresher
	cfg       config.PollConfig
	logger    logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
}

// New schedules both list refreshes. A run that is still going when its next
// tick arrives is skipped, never stacked.
func New(target Refresher, cfg config.PollConfig, logger logrus.FieldLogger) (*Poller, error) {
	if cfg.Preorders <= 0 || cfg.Tickets <= 0 {
		return nil, fmt.Errorf("poller: intervals must be positive (preorders %s, tickets %s)", cfg.Preorders, cfg.Tickets)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		scheduler: gocron.NewScheduler(time.Local),
		target:    target,
		cfg:       cfg,
		logger:    logger.WithField("component", "poller"),
		ctx:       ctx,
		cancel:    cancel,
	}
	p.scheduler.SingletonModeAll()

	if _, err := p.scheduler.Every(cfg.Preorders).Do(p.pollPreorders); err != nil {
		cancel()
		return nil, fmt.Errorf("poller: schedule pre-orders: %w", err)
	}
	if _, err := p.scheduler.Every(cfg.Tickets).Do(p.pollTickets); err != nil {
		cancel()
		return nil, fmt.Errorf("poller: schedule tickets: %w", err)
	}
	return p, nil
}

// Start runs both jobs immediately and then on their intervals.
func (p *Poller) Start() {
	p.scheduler.StartAsync()
	p.logger.WithFields(logrus.Fields{
		"preorders_every": p.cfg.Preorders.String(),
		"tickets_every":   p.cfg.Tickets.String(),
	}).Info("poller started")
}

// Stop cancels in-flight polls and stops the scheduler.
func (p *Poller) Stop() {
	p.cancel()
	p.scheduler.Stop()
}

func (p *Poller) pollPreorders() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Preorders)
	defer cancel()
	// Failures are logged and counted by the refresher.
	_, _ = p.target.RefreshPreorders(ctx)
}

func (p *Poller) pollTickets() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Tickets)
	defer cancel()
	_, _ = p.target.RefreshTickets(ctx)
}
