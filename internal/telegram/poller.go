package telegram

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	applog "avatarbot/internal/log"
)

const longPollTimeout = 10 * time.Second

// UpdateSource yields pending updates.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// PollerConfig tunes a Poller.
type PollerConfig struct {
	Interval time.Duration
	Workers  int
}

// Poller pulls updates and hands them to a Dispatcher. Updates of different
// users run concurrently; updates of one user run in arrival order.
type Poller struct {
	source     UpdateSource
	dispatcher *Dispatcher
	interval   time.Duration
	workers    int
}

// NewPoller builds a Poller.
func NewPoller(source UpdateSource, dispatcher *Dispatcher, cfg PollerConfig) *Poller {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		interval:   cfg.Interval,
		workers:    workers,
	}
}

// Run polls until ctx is cancelled. Failed fetches are retried after the
// poll interval; failed updates are logged and dropped.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	for {
		updates, err := p.source.GetUpdates(ctx, offset, longPollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			applog.Error(ctx, "failed to fetch updates", "error", err)
		} else {
			for _, u := range updates {
				if u.UpdateID >= offset {
					offset = u.UpdateID + 1
				}
			}
			p.process(ctx, updates)
		}

		if !sleep(ctx, p.interval) {
			return nil
		}
	}
}

func (p *Poller) process(ctx context.Context, updates []Update) {
	if len(updates) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, batch := range byUser(updates) {
		batch := batch
		g.Go(func() error {
			for _, u := range batch {
				if err := p.dispatcher.Dispatch(ctx, u); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					applog.Error(ctx, "failed to handle update", "updateID", u.UpdateID, "error", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// byUser groups updates by sender, keeping arrival order inside each group
// and ordering groups by their first update.
func byUser(updates []Update) [][]Update {
	index := make(map[int64]int)
	var groups [][]Update
	for _, u := range updates {
		var key int64
		if u.Message != nil && u.Message.From != nil {
			key = u.Message.From.ID
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], u)
	}
	return groups
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
