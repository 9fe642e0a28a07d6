package reservation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var (
	refStalls  = SectorRef{EventID: 1, VenueID: 1, SectorID: 1} // enumerated
	refFloor   = SectorRef{EventID: 1, VenueID: 1, SectorID: 2} // non-enumerated
	refBalcony = SectorRef{EventID: 1, VenueID: 1, SectorID: 3} // enumerated
)

// newTestEngine seeds a store with one event: an enumerated sector of 10
// seats, a non-enumerated sector of 5 slots and a second enumerated
// sector of 3 seats.
func newTestEngine(t *testing.T, cap int) (*Engine, *memStore) {
	t.Helper()
	s := newMemStore()
	s.addSector(refStalls, SectorEnumerated, 10)
	s.addSector(refFloor, SectorNonEnumerated, 5)
	s.addSector(refBalcony, SectorEnumerated, 3)
	return New(s, cap, time.Second), s
}

func group(ref SectorRef, indices []uint32, qty uint32) Group {
	return Group{EventID: ref.EventID, VenueID: ref.VenueID, SectorID: ref.SectorID, UnitIndices: indices, Quantity: qty}
}

func TestReserveExplicitSeats(t *testing.T) {
	e, s := newTestEngine(t, 0)
	resolved, err := e.Reserve(context.Background(), []Group{group(refStalls, []uint32{2, 1, 2}, 0)})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("resolved groups = %d, want 1", len(resolved))
	}
	// Duplicates collapse and indices come back sorted ascending.
	got := resolved[0].UnitIndices
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("resolved indices = %v, want [1 2]", got)
	}
	for _, idx := range got {
		if st := s.stateOf(refStalls, idx); st != StateReserved {
			t.Errorf("unit %d state = %s, want RESERVED", idx, st)
		}
	}
	if n := s.countState(refStalls, StateAvailable); n != 8 {
		t.Errorf("available after reserve = %d, want 8", n)
	}
}

func TestReserveQuantityPicksAscending(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	first, err := e.Reserve(context.Background(), []Group{group(refFloor, nil, 3)})
	if err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	if got := first[0].UnitIndices; len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("first allocation = %v, want [1 2 3]", got)
	}
	second, err := e.Reserve(context.Background(), []Group{group(refFloor, nil, 2)})
	if err != nil {
		t.Fatalf("second Reserve: %v", err)
	}
	if got := second[0].UnitIndices; len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Fatalf("second allocation = %v, want [4 5]", got)
	}
}

func TestReserveMultiGroupAllOrNothing(t *testing.T) {
	e, s := newTestEngine(t, 0)
	// First group is satisfiable, second asks for more than the floor holds.
	_, err := e.Reserve(context.Background(), []Group{
		group(refStalls, []uint32{1, 2}, 0),
		group(refFloor, nil, 6),
	})
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("err = %v, want ErrInsufficientInventory", err)
	}
	// The satisfiable group must have been rolled back with the rest.
	if n := s.countState(refStalls, StateReserved); n != 0 {
		t.Errorf("stalls reserved after failed request = %d, want 0", n)
	}
	if n := s.countState(refFloor, StateReserved); n != 0 {
		t.Errorf("floor reserved after failed request = %d, want 0", n)
	}
}

func TestReserveValidation(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	cases := []struct {
		name   string
		groups []Group
		want   error
	}{
		{"empty request", nil, ErrMalformedRequest},
		{"zero event id", []Group{{VenueID: 1, SectorID: 1, Quantity: 1}}, ErrMalformedRequest},
		{"zero venue id", []Group{{EventID: 1, SectorID: 1, Quantity: 1}}, ErrMalformedRequest},
		{"neither indices nor quantity", []Group{group(refStalls, nil, 0)}, ErrMalformedRequest},
		{"zero unit index", []Group{group(refStalls, []uint32{0, 1}, 0)}, ErrMalformedRequest},
		{"index beyond capacity", []Group{group(refStalls, []uint32{11}, 0)}, ErrMalformedRequest},
		{"explicit indices on non-enumerated sector", []Group{group(refFloor, []uint32{1}, 0)}, ErrMalformedRequest},
		{"unknown sector", []Group{group(SectorRef{EventID: 1, VenueID: 1, SectorID: 99}, nil, 1)}, ErrSectorNotFound},
		{"unknown event", []Group{group(SectorRef{EventID: 9, VenueID: 1, SectorID: 1}, nil, 1)}, ErrSectorNotFound},
		{"quantity beyond capacity", []Group{group(refFloor, nil, 6)}, ErrInsufficientInventory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Reserve(context.Background(), tc.groups); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestReserveConflictOnTakenSeat(t *testing.T) {
	e, s := newTestEngine(t, 0)
	if _, err := e.Reserve(context.Background(), []Group{group(refStalls, []uint32{2}, 0)}); err != nil {
		t.Fatalf("setup reserve: %v", err)
	}
	_, err := e.Reserve(context.Background(), []Group{group(refStalls, []uint32{1, 2}, 0)})
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("err = %v, want ErrConcurrencyConflict", err)
	}
	// Seat 1 must not be left dangling in RESERVED by the failed request.
	if st := s.stateOf(refStalls, 1); st != StateAvailable {
		t.Errorf("seat 1 state = %s, want AVAILABLE", st)
	}
}

func TestConcurrentDisjointRequestsAllSucceed(t *testing.T) {
	e, s := newTestEngine(t, 0)
	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seats := []uint32{uint32(2*i + 1), uint32(2*i + 2)}
			_, errs[i] = e.Reserve(context.Background(), []Group{group(refStalls, seats, 0)})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d failed: %v", i, err)
		}
	}
	if n := s.countState(refStalls, StateReserved); n != 10 {
		t.Errorf("reserved = %d, want 10", n)
	}
}

func TestConcurrentQuantityNeverOversells(t *testing.T) {
	e, s := newTestEngine(t, 0)
	// Two concurrent requests for 3 of 5 floor slots: exactly one can win.
	var wg sync.WaitGroup
	var ok, insufficient, conflict int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Reserve(context.Background(), []Group{group(refFloor, nil, 3)})
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, ErrInsufficientInventory):
				atomic.AddInt32(&insufficient, 1)
			case errors.Is(err, ErrConcurrencyConflict):
				atomic.AddInt32(&conflict, 1)
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("successful requests = %d, want 1", ok)
	}
	if insufficient+conflict != 1 {
		t.Fatalf("failed requests = %d, want 1 (insufficient=%d conflict=%d)", insufficient+conflict, insufficient, conflict)
	}
	if n := s.countState(refFloor, StateReserved); n != 3 {
		t.Errorf("reserved = %d, want 3", n)
	}
	if n := s.countState(refFloor, StateAvailable); n != 2 {
		t.Errorf("available = %d, want 2", n)
	}
}

func TestConcurrentEnumeratedOverlap(t *testing.T) {
	// Sector with seats [1 2 3]; A wants [1 2], B wants [2 3].  Exactly one
	// wins in full; the loser leaves nothing dangling.
	e, s := newTestEngine(t, 0)
	var wg sync.WaitGroup
	var ok int32
	requests := [][]uint32{{1, 2}, {2, 3}}
	for _, seats := range requests {
		wg.Add(1)
		go func(seats []uint32) {
			defer wg.Done()
			if _, err := e.Reserve(context.Background(), []Group{group(refBalcony, seats, 0)}); err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}(seats)
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("successful requests = %d, want 1", ok)
	}
	if n := s.countState(refBalcony, StateReserved); n != 2 {
		t.Errorf("reserved = %d, want 2", n)
	}
	if n := s.countState(refBalcony, StateAvailable); n != 1 {
		t.Errorf("available = %d, want 1", n)
	}
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	e, s := newTestEngine(t, 0)
	resolved, err := e.Reserve(context.Background(), []Group{group(refStalls, []uint32{4, 5}, 0)})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	n, err := e.Release(context.Background(), resolved)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if n != 2 {
		t.Fatalf("released = %d, want 2", n)
	}
	for _, idx := range []uint32{4, 5} {
		if st := s.stateOf(refStalls, idx); st != StateAvailable {
			t.Errorf("seat %d state = %s, want AVAILABLE", idx, st)
		}
		if sid, line := s.stampOf(refStalls, idx); sid != 0 || line != 0 {
			t.Errorf("seat %d still stamped sale=%d line=%d", idx, sid, line)
		}
	}
	// A second release of the same groups is a no-op.
	n, err = e.Release(context.Background(), resolved)
	if err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if n != 0 {
		t.Fatalf("second release count = %d, want 0", n)
	}
}

func TestReleaseEmptyRequest(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	n, err := e.Release(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("Release(nil) = (%d, %v), want (0, nil)", n, err)
	}
}

func TestFinalizeCreatesSaleIdempotently(t *testing.T) {
	e, s := newTestEngine(t, 0)
	resolved, err := e.Reserve(context.Background(), []Group{
		group(refStalls, []uint32{1, 2}, 0),
		group(refFloor, nil, 2),
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	saleID, created, err := e.Finalize(context.Background(), 42, resolved)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if saleID == 0 {
		t.Fatal("Finalize returned zero sale id")
	}
	if !created {
		t.Error("first Finalize reported created = false")
	}
	if sid, line := s.stampOf(refStalls, 1); sid != saleID || line != 1 {
		t.Errorf("stalls seat 1 stamped sale=%d line=%d, want sale=%d line=1", sid, line, saleID)
	}
	if sid, line := s.stampOf(refFloor, 1); sid != saleID || line != 2 {
		t.Errorf("floor slot 1 stamped sale=%d line=%d, want sale=%d line=2", sid, line, saleID)
	}
	// Duplicate payment confirmation: same call again succeeds, does not
	// create a second sale, and reports created = false so callers skip
	// republishing the completion event.
	again, created, err := e.Finalize(context.Background(), 42, resolved)
	if err != nil {
		t.Fatalf("duplicate Finalize: %v", err)
	}
	if again != saleID {
		t.Errorf("duplicate Finalize sale id = %d, want %d", again, saleID)
	}
	if created {
		t.Error("duplicate Finalize reported created = true")
	}
	if n := s.saleCount(); n != 1 {
		t.Errorf("sales created = %d, want 1", n)
	}
}

func TestFinalizePurchaseCap(t *testing.T) {
	e, s := newTestEngine(t, 6)
	// Client 7 already owns 5 sold tickets for the event.
	resolved, err := e.Reserve(context.Background(), []Group{group(refStalls, nil, 5)})
	if err != nil {
		t.Fatalf("setup reserve: %v", err)
	}
	if _, _, err := e.Finalize(context.Background(), 7, resolved); err != nil {
		t.Fatalf("setup finalize: %v", err)
	}
	// Two more would make 7 > cap 6.
	more, err := e.Reserve(context.Background(), []Group{group(refFloor, nil, 2)})
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if _, _, err := e.Finalize(context.Background(), 7, more); !errors.Is(err, ErrPurchaseCapExceeded) {
		t.Fatalf("err = %v, want ErrPurchaseCapExceeded", err)
	}
	// Cap violation happens before any mutation: units stay reserved and no
	// second sale exists.
	if n := s.countState(refFloor, StateReserved); n != 2 {
		t.Errorf("floor reserved = %d, want 2", n)
	}
	if n := s.saleCount(); n != 1 {
		t.Errorf("sales = %d, want 1", n)
	}
	// A different client is unaffected by client 7's history.
	if _, _, err := e.Finalize(context.Background(), 8, more); err != nil {
		t.Errorf("other client finalize: %v", err)
	}
}

func TestFinalizeOnReleasedUnitsFails(t *testing.T) {
	e, s := newTestEngine(t, 0)
	resolved, err := e.Reserve(context.Background(), []Group{group(refStalls, []uint32{1, 2}, 0)})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := e.Release(context.Background(), resolved); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, _, err := e.Finalize(context.Background(), 42, resolved); !errors.Is(err, ErrUnitsNotReserved) {
		t.Fatalf("err = %v, want ErrUnitsNotReserved", err)
	}
	if n := s.saleCount(); n != 0 {
		t.Errorf("sales after failed finalize = %d, want 0", n)
	}
	if n := s.countState(refStalls, StateSold); n != 0 {
		t.Errorf("sold after failed finalize = %d, want 0", n)
	}
}

func TestFinalizeValidation(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	rg := ResolvedGroup{EventID: 1, VenueID: 1, SectorID: 1, UnitIndices: []uint32{1}}
	if _, _, err := e.Finalize(context.Background(), 0, []ResolvedGroup{rg}); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("zero client: err = %v, want ErrMalformedRequest", err)
	}
	if _, _, err := e.Finalize(context.Background(), 42, nil); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("no groups: err = %v, want ErrMalformedRequest", err)
	}
	empty := ResolvedGroup{EventID: 1, VenueID: 1, SectorID: 1}
	if _, _, err := e.Finalize(context.Background(), 42, []ResolvedGroup{empty}); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("no indices: err = %v, want ErrMalformedRequest", err)
	}
}

func TestReleaseSkipsSoldUnits(t *testing.T) {
	e, s := newTestEngine(t, 0)
	resolved, err := e.Reserve(context.Background(), []Group{group(refStalls, []uint32{1, 2}, 0)})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, _, err := e.Finalize(context.Background(), 42, resolved); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	// A late payment-failure webhook for an already-finalized sale must not
	// touch the sold units.
	n, err := e.Release(context.Background(), resolved)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if n != 0 {
		t.Errorf("released = %d, want 0", n)
	}
	if got := s.countState(refStalls, StateSold); got != 2 {
		t.Errorf("sold = %d, want 2", got)
	}
}

// stalledStore stands in for a store stuck behind row locks: every
// transaction blocks until the engine's deadline fires.
type stalledStore struct {
	*memStore
}

func (s *stalledStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestTimeoutAbortsStalledTransaction(t *testing.T) {
	base := newMemStore()
	base.addSector(refStalls, SectorEnumerated, 10)
	e := New(&stalledStore{memStore: base}, 0, 20*time.Millisecond)

	start := time.Now()
	_, err := e.Reserve(context.Background(), []Group{group(refStalls, []uint32{1}, 0)})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Reserve err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Reserve blocked for %v instead of aborting at the deadline", elapsed)
	}
	// An aborted transaction must leave the inventory untouched.
	if n := base.countState(refStalls, StateReserved); n != 0 {
		t.Errorf("reserved after aborted reserve = %d, want 0", n)
	}

	rg := ResolvedGroup{EventID: refStalls.EventID, VenueID: refStalls.VenueID, SectorID: refStalls.SectorID, UnitIndices: []uint32{1}}
	_, created, err := e.Finalize(context.Background(), 42, []ResolvedGroup{rg})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Finalize err = %v, want context.DeadlineExceeded", err)
	}
	if created {
		t.Error("aborted Finalize reported created = true")
	}
	if n := base.saleCount(); n != 0 {
		t.Errorf("sales after aborted finalize = %d, want 0", n)
	}

	if _, err := e.Release(context.Background(), []ResolvedGroup{rg}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Release err = %v, want context.DeadlineExceeded", err)
	}
}
