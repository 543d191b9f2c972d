package mana

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// RedistributionWorker periodically tops up pools that have fallen below a
// floor, paid for out of a community reserve scope. Lazy regeneration keeps
// balances correct without it; the worker only smooths out inequality
// between participants.
type RedistributionWorker struct {
	manager  *Manager
	source   Scope
	floor    uint64
	interval time.Duration
	clock    clock.Clock
}

type RedistributionWorkerParams struct {
	Manager  *Manager
	Source   Scope
	Floor    uint64
	Interval time.Duration
	Clock    clock.Clock
}

func NewRedistributionWorker(params RedistributionWorkerParams) *RedistributionWorker {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.Interval == 0 {
		params.Interval = time.Minute
	}
	return &RedistributionWorker{
		manager:  params.Manager,
		source:   params.Source,
		floor:    params.Floor,
		interval: params.Interval,
		clock:    params.Clock,
	}
}

// Start runs the worker until the context is cancelled. Each tick completes
// its transfers before the next is consumed; no locks are held across tick
// boundaries.
func (w *RedistributionWorker) Start(ctx context.Context) {
	ticker := w.clock.Ticker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()
}

func (w *RedistributionWorker) tick(ctx context.Context) {
	for _, scope := range w.manager.Scopes() {
		if scope == w.source {
			continue
		}
		available := w.manager.Available(scope)
		if available >= w.floor {
			continue
		}
		topUp := w.floor - available
		if err := w.manager.Transfer(w.source, scope, topUp); err != nil {
			log.Ctx(ctx).Debug().Err(err).
				Str("Scope", scope.String()).
				Uint64("TopUp", topUp).
				Msg("mana redistribution skipped, reserve exhausted")
			return
		}
	}
}
