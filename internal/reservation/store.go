package reservation

import "context"

// Store is the inventory port the engine runs against.  The production
// implementation lives in internal/repository and is backed by MySQL; the
// engine tests use an in-memory implementation.  A Store must guarantee
// that everything done inside InTx is atomic: either the whole function
// commits or none of its mutations are observable.
type Store interface {
	// Sector resolves the type and seeded capacity of a sector.  It returns
	// ErrSectorNotFound when the (event, venue, sector) triple does not
	// reference an existing sector of the event's venue.
	Sector(ctx context.Context, ref SectorRef) (SectorInfo, error)

	// InTx runs fn inside one atomic unit of work.  When fn returns an
	// error the transaction is rolled back and the same error is returned;
	// otherwise the transaction is committed.  The context bounds the
	// whole transaction, including lock waits.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view of the inventory store.  All unit-state
// mutations go through the conditional transition methods, which only
// touch rows still in the expected prior state and report how many rows
// they actually changed.  That affected-row count is the engine's
// compare-and-swap primitive: an undercount means another transaction won
// the race for at least one unit.
type Tx interface {
	// AvailableIndices returns up to limit indices of AVAILABLE units in
	// the sector, ascending by unit index, locking the returned rows for
	// the remainder of the transaction.  Ascending order keeps allocation
	// deterministic and gives all transactions the same lock order.
	AvailableIndices(ctx context.Context, ref SectorRef, limit int) ([]uint32, error)

	// Transition conditionally moves the named units from one state to
	// another, returning the number of units actually transitioned.  Units
	// not currently in the from state are left untouched and simply not
	// counted.  Moving away from RESERVED clears any sale association.
	Transition(ctx context.Context, ref SectorRef, indices []uint32, from, to State) (int64, error)

	// MarkSold moves the named units from RESERVED to SOLD, stamping each
	// with the owning sale and line number.  Like Transition it returns
	// the affected-unit count.
	MarkSold(ctx context.Context, ref SectorRef, indices []uint32, saleID uint64, lineNo uint32) (int64, error)

	// SoldSale returns the sale that owns any already-SOLD unit among the
	// named indices.  ok is false when none of them is sold.  Finalize
	// uses this to absorb duplicate payment confirmations.
	SoldSale(ctx context.Context, ref SectorRef, indices []uint32) (saleID uint64, ok bool, err error)

	// SoldCountForClient counts the units of an event already sold to the
	// given client, for the purchase-cap check.
	SoldCountForClient(ctx context.Context, eventID, clientID uint64) (int, error)

	// CreateSale inserts a new sale owned by the client and returns its ID.
	CreateSale(ctx context.Context, clientID uint64) (uint64, error)

	// AddSaleItem records one line item of a sale: the sector and the
	// number of units purchased under the given line number.
	AddSaleItem(ctx context.Context, saleID uint64, lineNo uint32, ref SectorRef, quantity uint32) error
}
