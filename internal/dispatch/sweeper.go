package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecotransporte/dispatch-bot/internal/domain/requests"
	"github.com/ecotransporte/dispatch-bot/internal/infra/metrics"
)

const (
	sweepInterval = 60 * time.Second

	// Dialog records untouched for this long belong to abandoned flows.
	dialogTTL = 24 * time.Hour
)

// ReservationStore is the slice of the request store the sweeper needs.
type ReservationStore interface {
	ListDue(ctx context.Context, now time.Time) ([]requests.Request, error)
	ExpireIfDue(ctx context.Context, id int64, now time.Time) (*requests.Request, error)
}

// DialogPurger drops stale dialog state; the sweeper piggybacks the cleanup.
type DialogPurger interface {
	PurgeStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Sweeper reverts reservations whose confirmation window elapsed. One
// instance runs per process; the conditional update in ExpireIfDue keeps
// multiple processes from double-reverting.
type Sweeper struct {
	store    ReservationStore
	notifier *Notifier
	dialogs  DialogPurger
	log      *slog.Logger
}

func NewSweeper(store ReservationStore, notifier *Notifier, dialogs DialogPurger, log *slog.Logger) *Sweeper {
	return &Sweeper{store: store, notifier: notifier, dialogs: dialogs, log: log}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx, time.Now())
		}
	}
}

// Sweep processes one pass. A failure on one request is logged and skipped;
// the rest of the batch still runs. Zero due requests is a no-op.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.log.Error("sweep: list due failed", "err", err)
		return
	}

	for _, req := range due {
		reverted, err := s.store.ExpireIfDue(ctx, req.ID, now)
		if err != nil {
			s.log.Error("sweep: expire failed", "request", req.ID, "err", err)
			continue
		}
		if reverted == nil {
			// Confirmed, rejected or already swept since we listed it.
			continue
		}
		metrics.ReservationsExpired.Inc()
		s.log.Info("reservation expired", "request", req.ID)
		s.notifier.NotifyOutcome(ctx, reverted, nil, OutcomeExpired)

		// The request is dispatchable again; offer it to transporters anew.
		if err := s.notifier.BroadcastNew(ctx, reverted); err != nil {
			s.log.Error("sweep: rebroadcast failed", "request", req.ID, "err", err)
		}
	}

	if s.dialogs != nil {
		if purged, err := s.dialogs.PurgeStale(ctx, dialogTTL); err != nil {
			s.log.Error("sweep: dialog purge failed", "err", err)
		} else if purged > 0 {
			s.log.Info("stale dialogs purged", "count", purged)
		}
	}
}
