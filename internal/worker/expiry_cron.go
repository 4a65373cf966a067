package worker

// expiry_cron.go
// Background sweep that keeps the platform from accumulating dead state:
//   1. Orders stuck awaiting payment (or confirmed but never progressed)
//      past the expiry window are cancelled, which restores their stock.
//   2. Active batches past their expiry date are flipped to expired.
// Each tick is best-effort: a failure on one order is logged and the sweep
// moves on.

import (
	"context"
	"sync"
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/repository"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/service"

	"github.com/rs/zerolog/log"
)

const sweepBatchSize = 50

// Sweeper owns the periodic expiry sweep. Start/Stop may be called more than
// once, so settings can change between runs without leaking timers.
type Sweeper struct {
	orders    service.OrderService
	batches   service.BatchService
	orderRepo repository.OrderRepository

	interval time.Duration
	window   time.Duration
	nowFn    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(
	orders service.OrderService,
	batches service.BatchService,
	orderRepo repository.OrderRepository,
	interval, window time.Duration,
) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &Sweeper{
		orders:    orders,
		batches:   batches,
		orderRepo: orderRepo,
		interval:  interval,
		window:    window,
		nowFn:     time.Now,
	}
}

// Start launches the sweep goroutine. A second Start without an intervening
// Stop replaces the previous run.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.stopLocked()
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Info().
			Dur("interval", s.interval).
			Dur("window", s.window).
			Msg("sweeper: started")

		for {
			select {
			case <-runCtx.Done():
				log.Info().Msg("sweeper: shutting down")
				return
			case <-ticker.C:
				s.Sweep(runCtx)
			}
		}
	}()
}

// Stop halts the sweep goroutine and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sweeper) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Sweep runs one pass: cancel stalled orders, then expire overdue batches.
// Exported so a tick can be forced from tests and admin tooling.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := s.nowFn().Add(-s.window)

	cancelled := 0
	failed := 0

	// Unpaid orders that never saw a payment confirmation.
	pendingPayment := model.PaymentPending
	stalled, err := s.orderRepo.Stalled(ctx, model.OrderPending, &pendingPayment, cutoff, sweepBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("sweeper: failed to query stalled pending orders")
	} else {
		c, f := s.cancelStalled(ctx, stalled, "payment not received within expiry window")
		cancelled, failed = cancelled+c, failed+f
	}

	// Confirmed orders the store never moved to processing.
	stalled, err = s.orderRepo.Stalled(ctx, model.OrderConfirmed, nil, cutoff, sweepBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("sweeper: failed to query stalled confirmed orders")
	} else {
		c, f := s.cancelStalled(ctx, stalled, "order not processed within expiry window")
		cancelled, failed = cancelled+c, failed+f
	}

	expired, err := s.batches.MarkExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweeper: batch expiry pass failed")
	}

	if cancelled > 0 || failed > 0 || expired > 0 {
		log.Info().
			Int("orders_cancelled", cancelled).
			Int("orders_failed", failed).
			Int("batches_expired", expired).
			Msg("sweeper: pass finished")
	}
}

func (s *Sweeper) cancelStalled(ctx context.Context, orders []model.Order, reason string) (cancelled, failed int) {
	for i := range orders {
		o := &orders[i]
		if err := s.orders.CancelOrder(ctx, o.ID, "system", reason); err != nil {
			failed++
			log.Error().Err(err).
				Str("order_id", o.ID.String()).
				Int("order_number", o.OrderNumber).
				Msg("sweeper: failed to cancel stalled order")
			continue
		}
		cancelled++
		log.Info().
			Str("order_id", o.ID.String()).
			Int("order_number", o.OrderNumber).
			Str("reason", reason).
			Msg("sweeper: cancelled stalled order")
	}
	return cancelled, failed
}
