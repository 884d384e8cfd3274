package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/frontdesk/internal/changefeed"
)

type fakeStore struct {
	mu        sync.Mutex
	crm       int
	noShows   int
	overdue   int
	reception int
	err       error
	onCount   func()
}

func (s *fakeStore) set(crm, noShows, overdue, reception int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crm, s.noShows, s.overdue, s.reception = crm, noShows, overdue, reception
}

func (s *fakeStore) count(v int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onCount != nil {
		s.onCount()
	}
	return v, s.err
}

func (s *fakeStore) CountNewLeadsSince(context.Context, time.Time) (int, error) {
	return s.count(s.crm)
}
func (s *fakeStore) CountNoShowsOn(context.Context, time.Time) (int, error) {
	return s.count(s.noShows)
}
func (s *fakeStore) CountOverduePayments(context.Context) (int, error) {
	return s.count(s.overdue)
}
func (s *fakeStore) CountExpectedArrivals(context.Context, time.Time) (int, error) {
	return s.count(s.reception)
}

type fakeFeed struct {
	mu       sync.Mutex
	handlers map[string]changefeed.Handler
	unsubbed []string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{handlers: map[string]changefeed.Handler{}}
}

func (f *fakeFeed) Subscribe(collection string, handler changefeed.Handler) (changefeed.Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[collection] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubbed = append(f.unsubbed, collection)
	}, nil
}

func (f *fakeFeed) fire(collection string) {
	f.mu.Lock()
	handler := f.handlers[collection]
	f.mu.Unlock()
	if handler != nil {
		handler(context.Background(), changefeed.Event{Collection: collection, Op: changefeed.OpInsert})
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestAggregator_InitialLoad(t *testing.T) {
	store := &fakeStore{}
	store.set(3, 1, 2, 5)
	agg := NewAggregator(store, newFakeFeed(), testLogger(), Options{})

	var loadingDuringFetch bool
	store.onCount = func() { loadingDuringFetch = loadingDuringFetch || agg.Loading() }

	if agg.Loading() {
		t.Fatal("loading should be false before start")
	}
	if err := agg.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agg.Stop()

	if !loadingDuringFetch {
		t.Fatal("loading should be true during the first fetch")
	}
	if agg.Loading() {
		t.Fatal("loading should be false after the first fetch")
	}
	got := agg.Counters()
	want := Counters{CRM: 3, Appointments: 1, Overdue: 2, Reception: 5}
	if got != want {
		t.Fatalf("counters: got %+v want %+v", got, want)
	}
}

func TestAggregator_RefreshOnAnyCollectionChange(t *testing.T) {
	store := &fakeStore{}
	feed := newFakeFeed()
	agg := NewAggregator(store, feed, testLogger(), Options{ReconcileInterval: time.Hour})
	if err := agg.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agg.Stop()

	// A payments-only mutation still refreshes every counter.
	store.set(7, 2, 1, 4)
	feed.fire(changefeed.CollectionPayments)

	waitFor(t, func() bool {
		return agg.Counters() == Counters{CRM: 7, Appointments: 2, Overdue: 1, Reception: 4}
	})

	store.set(8, 2, 1, 4)
	feed.fire(changefeed.CollectionLeads)
	waitFor(t, func() bool { return agg.Counters().CRM == 8 })

	store.set(8, 3, 1, 4)
	feed.fire(changefeed.CollectionAppointments)
	waitFor(t, func() bool { return agg.Counters().Appointments == 3 })
}

func TestAggregator_RefreshErrorKeepsSnapshot(t *testing.T) {
	store := &fakeStore{}
	store.set(1, 1, 1, 1)
	agg := NewAggregator(store, newFakeFeed(), testLogger(), Options{ReconcileInterval: time.Hour})
	if err := agg.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agg.Stop()

	store.mu.Lock()
	store.err = errors.New("db down")
	store.mu.Unlock()

	if err := agg.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if got := agg.Counters(); got != (Counters{CRM: 1, Appointments: 1, Overdue: 1, Reception: 1}) {
		t.Fatalf("snapshot should survive a failed refresh: %+v", got)
	}
}

func TestAggregator_StopUnsubscribes(t *testing.T) {
	feed := newFakeFeed()
	agg := NewAggregator(&fakeStore{}, feed, testLogger(), Options{})
	if err := agg.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	agg.Stop()

	feed.mu.Lock()
	defer feed.mu.Unlock()
	if len(feed.unsubbed) != 3 {
		t.Fatalf("expected 3 unsubscribes, got %d", len(feed.unsubbed))
	}
}

func TestAggregator_DoubleStart(t *testing.T) {
	agg := NewAggregator(&fakeStore{}, newFakeFeed(), testLogger(), Options{})
	if err := agg.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agg.Stop()
	if err := agg.Start(context.Background()); err == nil {
		t.Fatal("second start should fail")
	}
}
