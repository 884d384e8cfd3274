package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/frontdesk/internal/changefeed"
)

// Counters is one point-in-time snapshot of the operational alert badges.
// Each value is recomputed wholesale on every refresh, never mutated
// incrementally, so refreshes are idempotent and order-independent.
type Counters struct {
	CRM          int `json:"crm"`
	Appointments int `json:"appointments"`
	Overdue      int `json:"overdue"`
	Reception    int `json:"reception"`
}

// Store answers the four counter queries against live records.
type Store interface {
	CountNewLeadsSince(ctx context.Context, since time.Time) (int, error)
	CountNoShowsOn(ctx context.Context, day time.Time) (int, error)
	CountOverduePayments(ctx context.Context) (int, error)
	CountExpectedArrivals(ctx context.Context, day time.Time) (int, error)
}

const (
	// DefaultReconcileInterval is the backstop against lost change
	// notifications.
	DefaultReconcileInterval = 5 * time.Minute

	crmWindow = 24 * time.Hour
)

var watchedCollections = []string{
	changefeed.CollectionLeads,
	changefeed.CollectionAppointments,
	changefeed.CollectionPayments,
}

// Aggregator keeps the four console counters fresh. A change on any watched
// collection refreshes all four; precision is traded for simplicity. It owns
// its subscription handles: Start subscribes, Stop unsubscribes and halts
// the reconciliation loop.
type Aggregator struct {
	store    Store
	feed     changefeed.Feed
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	counters Counters
	loading  bool
	started  bool

	refreshCh chan struct{}
	unsubs    []changefeed.Unsubscribe
	cancel    context.CancelFunc
	done      chan struct{}
}

type Options struct {
	ReconcileInterval time.Duration
}

func NewAggregator(store Store, feed changefeed.Feed, logger *slog.Logger, opts Options) *Aggregator {
	interval := opts.ReconcileInterval
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Aggregator{
		store:     store,
		feed:      feed,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
		refreshCh: make(chan struct{}, 1),
	}
}

// Start performs the initial fetch, subscribes to the watched collections,
// and launches the periodic reconciliation loop. A failed initial fetch is
// logged, not fatal: the next refresh heals it.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("aggregator already started")
	}
	a.started = true
	a.loading = true
	a.mu.Unlock()

	if err := a.Refresh(ctx); err != nil {
		a.logger.Error("initial counter fetch failed", "err", err)
	}
	a.mu.Lock()
	a.loading = false
	a.mu.Unlock()

	for _, collection := range watchedCollections {
		unsub, err := a.feed.Subscribe(collection, func(_ context.Context, _ changefeed.Event) {
			a.kick()
		})
		if err != nil {
			a.teardown()
			return fmt.Errorf("subscribe %s: %w", collection, err)
		}
		a.unsubs = append(a.unsubs, unsub)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.run(runCtx)
	return nil
}

// Stop releases the subscriptions and halts the loop. Safe to call once
// after a successful Start.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	a.teardown()
}

func (a *Aggregator) teardown() {
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
}

// kick coalesces bursts of change events into at most one pending refresh.
func (a *Aggregator) kick() {
	select {
	case a.refreshCh <- struct{}{}:
	default:
	}
}

func (a *Aggregator) run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-a.refreshCh:
		}
		if err := a.Refresh(ctx); err != nil {
			a.logger.Error("counter refresh failed", "err", err)
		}
	}
}

// Refresh recomputes all four counters from scratch. On error the previous
// snapshot is kept; the reconciliation ticker retries implicitly.
func (a *Aggregator) Refresh(ctx context.Context) error {
	now := a.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	crm, err := a.store.CountNewLeadsSince(ctx, now.Add(-crmWindow))
	if err != nil {
		return fmt.Errorf("count new leads: %w", err)
	}
	noShows, err := a.store.CountNoShowsOn(ctx, today)
	if err != nil {
		return fmt.Errorf("count no-shows: %w", err)
	}
	overdue, err := a.store.CountOverduePayments(ctx)
	if err != nil {
		return fmt.Errorf("count overdue payments: %w", err)
	}
	reception, err := a.store.CountExpectedArrivals(ctx, today)
	if err != nil {
		return fmt.Errorf("count expected arrivals: %w", err)
	}

	a.mu.Lock()
	a.counters = Counters{
		CRM:          crm,
		Appointments: noShows,
		Overdue:      overdue,
		Reception:    reception,
	}
	a.mu.Unlock()
	return nil
}

// Counters returns the latest snapshot.
func (a *Aggregator) Counters() Counters {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.counters
}

// Loading reports whether the very first fetch is still in flight.
func (a *Aggregator) Loading() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loading
}
