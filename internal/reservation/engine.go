package reservation

import (
	"context"
	"sort"
	"time"
)

// DefaultPurchaseCap bounds how many units of one event a single client
// may own across all confirmed sales.
const DefaultPurchaseCap = 6

// DefaultTxTimeout bounds one atomic unit of work, including any lock
// waits inside the store.  A reservation that cannot commit within this
// window is aborted and surfaced as a context error rather than left
// hanging under contention.
const DefaultTxTimeout = 10 * time.Second

// Engine coordinates reservation, finalization and release of sellable
// units against a Store.  It holds no mutable state of its own, so one
// Engine value is safe for use by any number of goroutines.
type Engine struct {
	store       Store
	purchaseCap int
	txTimeout   time.Duration
}

// New returns an Engine bound to the given store.  Non-positive cap or
// timeout values fall back to the package defaults.
func New(store Store, purchaseCap int, txTimeout time.Duration) *Engine {
	if store == nil {
		panic("nil store passed to reservation.New")
	}
	if purchaseCap <= 0 {
		purchaseCap = DefaultPurchaseCap
	}
	if txTimeout <= 0 {
		txTimeout = DefaultTxTimeout
	}
	return &Engine{store: store, purchaseCap: purchaseCap, txTimeout: txTimeout}
}

// plan is one group after validation: its position in the request, the
// sector info, and the exact or to-be-chosen unit indices.
type plan struct {
	pos     int // index into the original request
	ref     SectorRef
	info    SectorInfo
	indices []uint32 // explicit indices, sorted; nil for quantity requests
	wantQty int      // quantity for non-explicit requests
}

// Reserve attempts to transition every requested unit from AVAILABLE to
// RESERVED.  The operation is all-or-nothing across the entire request:
// when any group cannot be satisfied, no unit in any group is mutated and
// the caller sees exactly one of the engine's sentinel errors.  On success
// it returns the concrete unit indices claimed for each group, in request
// order; callers need these to later Finalize or Release.
func (e *Engine) Reserve(ctx context.Context, groups []Group) ([]ResolvedGroup, error) {
	plans, err := e.validate(ctx, groups)
	if err != nil {
		return nil, err
	}
	// Lock sectors in a fixed global order so overlapping concurrent
	// requests cannot deadlock each other.
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].ref.less(plans[j].ref) })

	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	resolved := make([]ResolvedGroup, len(groups))
	err = e.store.InTx(ctx, func(tx Tx) error {
		for _, p := range plans {
			want := p.indices
			if want == nil {
				// Quantity request: pick the lowest available indices.
				// Ascending order keeps allocation deterministic and
				// minimizes fragmentation.
				avail, err := tx.AvailableIndices(ctx, p.ref, p.wantQty)
				if err != nil {
					return err
				}
				if len(avail) < p.wantQty {
					return ErrInsufficientInventory
				}
				want = avail
			}
			n, err := tx.Transition(ctx, p.ref, want, StateAvailable, StateReserved)
			if err != nil {
				return err
			}
			if n != int64(len(want)) {
				// At least one candidate was claimed by a concurrent
				// request between selection and transition.  A partial
				// refill cannot tell which units were won, so the whole
				// request fails and the caller retries from scratch.
				return ErrConcurrencyConflict
			}
			resolved[p.pos] = ResolvedGroup{
				EventID:     p.ref.EventID,
				VenueID:     p.ref.VenueID,
				SectorID:    p.ref.SectorID,
				UnitIndices: want,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// Finalize converts previously reserved units into a permanent sale for
// the client.  It is idempotent with respect to duplicate payment
// confirmations: when any requested unit is already SOLD the call returns
// the owning sale's ID without creating anything.  Otherwise it checks the
// per-event purchase cap, creates one sale with one line item per group,
// and stamps every unit RESERVED -> SOLD.  If any unit is no longer
// reserved the whole operation rolls back with ErrUnitsNotReserved.
// The second return value reports whether this call created the sale;
// absorbed duplicates report false so callers can run once-per-sale side
// effects exactly once.
func (e *Engine) Finalize(ctx context.Context, clientID uint64, groups []ResolvedGroup) (uint64, bool, error) {
	if clientID == 0 {
		return 0, false, ErrMalformedRequest
	}
	if len(groups) == 0 {
		return 0, false, ErrMalformedRequest
	}
	type line struct {
		lineNo  uint32
		ref     SectorRef
		indices []uint32
	}
	lines := make([]line, 0, len(groups))
	perEvent := make(map[uint64]int)
	for i, g := range groups {
		if g.EventID == 0 || g.VenueID == 0 || g.SectorID == 0 || len(g.UnitIndices) == 0 {
			return 0, false, ErrMalformedRequest
		}
		idx := dedupeSorted(g.UnitIndices)
		for _, u := range idx {
			if u == 0 {
				return 0, false, ErrMalformedRequest
			}
		}
		lines = append(lines, line{lineNo: uint32(i + 1), ref: g.Ref(), indices: idx})
		perEvent[g.EventID] += len(idx)
	}
	// Stamp units in the same global order Reserve locks them in.
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].ref.less(lines[j].ref) })

	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	var saleID uint64
	var created bool
	err := e.store.InTx(ctx, func(tx Tx) error {
		created = false
		// Duplicate confirmation check first: a payment provider may
		// notify success more than once.  Any already-sold unit means the
		// sale exists and this call is a no-op success.
		for _, ln := range lines {
			sid, ok, err := tx.SoldSale(ctx, ln.ref, ln.indices)
			if err != nil {
				return err
			}
			if ok {
				saleID = sid
				return nil
			}
		}
		// Purchase cap, checked per event before any mutation.
		for eventID, requested := range perEvent {
			prior, err := tx.SoldCountForClient(ctx, eventID, clientID)
			if err != nil {
				return err
			}
			if prior+requested > e.purchaseCap {
				return ErrPurchaseCapExceeded
			}
		}
		sid, err := tx.CreateSale(ctx, clientID)
		if err != nil {
			return err
		}
		for _, ln := range lines {
			if err := tx.AddSaleItem(ctx, sid, ln.lineNo, ln.ref, uint32(len(ln.indices))); err != nil {
				return err
			}
			n, err := tx.MarkSold(ctx, ln.ref, ln.indices, sid, ln.lineNo)
			if err != nil {
				return err
			}
			if n != int64(len(ln.indices)) {
				// Some unit slipped out of RESERVED (e.g. released after a
				// payment timeout).  Roll everything back; the caller must
				// handle the payment out of band.
				return ErrUnitsNotReserved
			}
		}
		saleID = sid
		created = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return saleID, created, nil
}

// Release returns reserved-but-unpaid units to the available pool,
// clearing their sale association.  Units that are not currently RESERVED
// (already sold, or already released) are silently skipped, which makes
// Release idempotent and safe to invoke repeatedly for the same
// payment-failure event.  It reports how many units actually transitioned.
func (e *Engine) Release(ctx context.Context, groups []ResolvedGroup) (int, error) {
	ordered := make([]ResolvedGroup, 0, len(groups))
	for _, g := range groups {
		if len(g.UnitIndices) == 0 {
			continue
		}
		ordered = append(ordered, g)
	}
	if len(ordered) == 0 {
		return 0, nil
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Ref().less(ordered[j].Ref()) })

	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	released := 0
	err := e.store.InTx(ctx, func(tx Tx) error {
		released = 0
		for _, g := range ordered {
			n, err := tx.Transition(ctx, g.Ref(), dedupeSorted(g.UnitIndices), StateReserved, StateAvailable)
			if err != nil {
				return err
			}
			released += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// validate checks the shape of a reserve request and resolves every
// group's sector.  It returns one plan per group or the first error
// encountered: ErrMalformedRequest for structural problems,
// ErrSectorNotFound for bad references, ErrInsufficientInventory when a
// request exceeds the sector's seeded capacity outright.
func (e *Engine) validate(ctx context.Context, groups []Group) ([]plan, error) {
	if len(groups) == 0 {
		return nil, ErrMalformedRequest
	}
	plans := make([]plan, 0, len(groups))
	for i, g := range groups {
		if g.EventID == 0 || g.VenueID == 0 || g.SectorID == 0 {
			return nil, ErrMalformedRequest
		}
		if len(g.UnitIndices) == 0 && g.Quantity == 0 {
			return nil, ErrMalformedRequest
		}
		info, err := e.store.Sector(ctx, g.Ref())
		if err != nil {
			return nil, err
		}
		p := plan{pos: i, ref: g.Ref(), info: info}
		if len(g.UnitIndices) > 0 {
			if info.Type != SectorEnumerated {
				// Non-enumerated sectors sell interchangeable slots; naming
				// specific indices there is a caller bug.
				return nil, ErrMalformedRequest
			}
			idx := dedupeSorted(g.UnitIndices)
			for _, u := range idx {
				if u == 0 || u > info.Capacity {
					return nil, ErrMalformedRequest
				}
			}
			p.indices = idx
		} else {
			if g.Quantity > info.Capacity {
				return nil, ErrInsufficientInventory
			}
			p.wantQty = int(g.Quantity)
		}
		plans = append(plans, p)
	}
	return plans, nil
}
