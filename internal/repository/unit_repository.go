package repository // repository for sellable unit persistence

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/alperoz/ticket-sales/internal/reservation"
)

// UnitRepo encapsulates database operations for the units table: the
// durable record of every sellable unit's current state.  It is the
// MySQL implementation of the reservation engine's store port
// (reservation.Store).  All state mutations go through conditional
// UPDATEs guarded by the expected prior state; the affected-row count
// those report is the compare-and-swap primitive the engine relies on.
type UnitRepo struct {
	db *sql.DB
}

// NewUnitRepo constructs a UnitRepo given a DB handle.
func NewUnitRepo(db *sql.DB) *UnitRepo {
	return &UnitRepo{db: db}
}

// DB exposes the underlying handle so handlers can open transactions
// that span multiple repositories.
func (r *UnitRepo) DB() *sql.DB { return r.db }

// placeholders returns a comma-joined list of n '?' markers for use in
// IN clauses.  n must be positive.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// unitKeyArgs prepends the sector key columns to the given index values
// so they can be passed to ExecContext in one slice.
func unitKeyArgs(ref reservation.SectorRef, indices []uint32) []interface{} {
	args := make([]interface{}, 0, 3+len(indices))
	args = append(args, ref.EventID, ref.VenueID, ref.SectorID)
	for _, idx := range indices {
		args = append(args, idx)
	}
	return args
}

// Sector resolves the sector type and seeded capacity for a
// (event, venue, sector) triple.  The join through events verifies that
// the event is actually hosted at the venue owning the sector, so a
// mismatched triple reports reservation.ErrSectorNotFound rather than
// leaking another event's sector.
func (r *UnitRepo) Sector(ctx context.Context, ref reservation.SectorRef) (reservation.SectorInfo, error) {
	const q = `SELECT s.sector_type, s.capacity
               FROM sectors s
               JOIN events e ON e.venue_id = s.venue_id
               WHERE e.id = ? AND s.venue_id = ? AND s.id = ?`
	var info reservation.SectorInfo
	var typ string
	err := r.db.QueryRowContext(ctx, q, ref.EventID, ref.VenueID, ref.SectorID).Scan(&typ, &info.Capacity)
	if err != nil {
		if err == sql.ErrNoRows {
			return reservation.SectorInfo{}, reservation.ErrSectorNotFound
		}
		return reservation.SectorInfo{}, err
	}
	info.Type = reservation.SectorType(typ)
	return info, nil
}

// InTx runs fn inside a single database transaction.  When fn returns an
// error the transaction is rolled back and that error is returned
// unchanged, so the engine's sentinel errors survive the round trip.
// The caller's context bounds the whole transaction including lock
// waits; a deadline abort rolls back like any other failure.
func (r *UnitRepo) InTx(ctx context.Context, fn func(tx reservation.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&unitTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// unitTx implements reservation.Tx over one open *sql.Tx.
type unitTx struct {
	tx *sql.Tx
}

// AvailableIndices selects up to limit available unit indices for a
// sector in ascending index order, locking the rows for the remainder
// of the transaction.  Ascending order gives every transaction the same
// lock acquisition order, which keeps overlapping reservations from
// deadlocking each other.
func (t *unitTx) AvailableIndices(ctx context.Context, ref reservation.SectorRef, limit int) ([]uint32, error) {
	const q = `SELECT unit_idx FROM units
               WHERE event_id = ? AND venue_id = ? AND sector_id = ? AND state = 'AVAILABLE'
               ORDER BY unit_idx ASC
               LIMIT ?
               FOR UPDATE`
	rows, err := t.tx.QueryContext(ctx, q, ref.EventID, ref.VenueID, ref.SectorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]uint32, 0, limit)
	for rows.Next() {
		var idx uint32
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Transition conditionally moves the named units between states and
// reports how many rows actually changed.  Rows not in the expected
// prior state are left untouched.  Sale stamps are cleared on every
// transition here: moving out of RESERVED must drop the association,
// and a unit entering RESERVED has none yet.
func (t *unitTx) Transition(ctx context.Context, ref reservation.SectorRef, indices []uint32, from, to reservation.State) (int64, error) {
	if len(indices) == 0 {
		return 0, nil
	}
	q := `UPDATE units SET state = ?, sale_id = NULL, line_no = NULL
          WHERE event_id = ? AND venue_id = ? AND sector_id = ?
            AND state = ? AND unit_idx IN (` + placeholders(len(indices)) + `)`
	args := make([]interface{}, 0, 5+len(indices))
	args = append(args, string(to), ref.EventID, ref.VenueID, ref.SectorID, string(from))
	for _, idx := range indices {
		args = append(args, idx)
	}
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkSold moves the named units from RESERVED to SOLD and stamps each
// with the owning sale and line number.
func (t *unitTx) MarkSold(ctx context.Context, ref reservation.SectorRef, indices []uint32, saleID uint64, lineNo uint32) (int64, error) {
	if len(indices) == 0 {
		return 0, nil
	}
	q := `UPDATE units SET state = 'SOLD', sale_id = ?, line_no = ?
          WHERE event_id = ? AND venue_id = ? AND sector_id = ?
            AND state = 'RESERVED' AND unit_idx IN (` + placeholders(len(indices)) + `)`
	args := make([]interface{}, 0, 5+len(indices))
	args = append(args, saleID, lineNo, ref.EventID, ref.VenueID, ref.SectorID)
	for _, idx := range indices {
		args = append(args, idx)
	}
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SoldSale returns the sale owning any already-sold unit among the named
// indices.  ok is false when none of them is sold.
func (t *unitTx) SoldSale(ctx context.Context, ref reservation.SectorRef, indices []uint32) (uint64, bool, error) {
	if len(indices) == 0 {
		return 0, false, nil
	}
	q := `SELECT sale_id FROM units
          WHERE event_id = ? AND venue_id = ? AND sector_id = ?
            AND state = 'SOLD' AND sale_id IS NOT NULL
            AND unit_idx IN (` + placeholders(len(indices)) + `)
          LIMIT 1`
	var saleID uint64
	err := t.tx.QueryRowContext(ctx, q, unitKeyArgs(ref, indices)...).Scan(&saleID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return saleID, true, nil
}

// SoldCountForClient counts the units of an event already sold to a
// client, for the per-event purchase cap check.  The client's users row
// is locked first so two finalizes for the same client serialize, and
// the count itself is a locking read so it reflects the latest committed
// sales rather than this transaction's snapshot.  A plain COUNT here
// would let two concurrent finalizes each read the old total and commit
// past the cap together.
func (t *unitTx) SoldCountForClient(ctx context.Context, eventID, clientID uint64) (int, error) {
	var id uint64
	if err := t.tx.QueryRowContext(ctx, clientLockQuery, clientID).Scan(&id); err != nil {
		return 0, err
	}
	var n int
	if err := t.tx.QueryRowContext(ctx, soldCountForClientQuery, eventID, clientID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

const clientLockQuery = `SELECT id FROM users WHERE id = ? FOR UPDATE`

const soldCountForClientQuery = `SELECT COUNT(*)
               FROM units u
               JOIN sales sa ON sa.id = u.sale_id
               WHERE u.event_id = ? AND u.state = 'SOLD' AND sa.client_id = ?
               FOR UPDATE`

// CreateSale inserts a sale for the client with a fresh opaque reference
// and returns the generated ID.
func (t *unitTx) CreateSale(ctx context.Context, clientID uint64) (uint64, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO sales (client_id, sale_ref) VALUES (?, ?)`,
		clientID, uuid.NewString())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// AddSaleItem records one line item of a sale.
func (t *unitTx) AddSaleItem(ctx context.Context, saleID uint64, lineNo uint32, ref reservation.SectorRef, quantity uint32) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO sale_items (sale_id, line_no, event_id, venue_id, sector_id, quantity) VALUES (?, ?, ?, ?, ?, ?)`,
		saleID, lineNo, ref.EventID, ref.VenueID, ref.SectorID, quantity)
	return err
}

// CreateBulkTx materializes capacity unit rows for one sector of a newly
// created event, indices 1..capacity, all AVAILABLE.  Rows are inserted
// in chunks so a large venue does not exceed the server's placeholder
// limit.  The insertion occurs within the provided transaction.
func (r *UnitRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, eventID, venueID, sectorID uint64, capacity uint32) error {
	const chunk = 1000
	for start := uint32(1); start <= capacity; start += chunk {
		end := start + chunk - 1
		if end > capacity {
			end = capacity
		}
		query := `INSERT INTO units (event_id, venue_id, sector_id, unit_idx, state) VALUES `
		args := make([]interface{}, 0, int(end-start+1)*4)
		for idx := start; idx <= end; idx++ {
			if idx > start {
				query += ","
			}
			query += "(?, ?, ?, ?, 'AVAILABLE')"
			args = append(args, eventID, venueID, sectorID, idx)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// SectorCounts summarizes one sector's inventory for availability
// browsing.
type SectorCounts struct {
	SectorID   uint64 `json:"sector_id"`
	Name       string `json:"name"`
	SectorType string `json:"sector_type"`
	Capacity   uint32 `json:"capacity"`
	Available  uint32 `json:"available"`
	Reserved   uint32 `json:"reserved"`
	Sold       uint32 `json:"sold"`
}

// AvailabilityByEvent returns per-sector state counts for an event.
// Sectors are ordered by ID for deterministic output.
func (r *UnitRepo) AvailabilityByEvent(ctx context.Context, eventID uint64) ([]SectorCounts, error) {
	const q = `SELECT s.id, s.name, s.sector_type, s.capacity,
                      COALESCE(SUM(u.state = 'AVAILABLE'), 0),
                      COALESCE(SUM(u.state = 'RESERVED'), 0),
                      COALESCE(SUM(u.state = 'SOLD'), 0)
               FROM sectors s
               JOIN events e ON e.venue_id = s.venue_id
               LEFT JOIN units u ON u.event_id = e.id AND u.sector_id = s.id
               WHERE e.id = ?
               GROUP BY s.id, s.name, s.sector_type, s.capacity
               ORDER BY s.id`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SectorCounts, 0)
	for rows.Next() {
		var sc SectorCounts
		if err := rows.Scan(&sc.SectorID, &sc.Name, &sc.SectorType, &sc.Capacity, &sc.Available, &sc.Reserved, &sc.Sold); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SeatState pairs a unit index with its current state, for seat maps of
// enumerated sectors.
type SeatState struct {
	UnitIdx uint32 `json:"unit_idx"`
	State   string `json:"state"`
}

// SeatMap lists every unit of one sector with its state, ascending by
// index.  Callers should only expose this for enumerated sectors; for
// non-enumerated sectors the indices carry no meaning for buyers.
func (r *UnitRepo) SeatMap(ctx context.Context, ref reservation.SectorRef) ([]SeatState, error) {
	const q = `SELECT unit_idx, state FROM units
               WHERE event_id = ? AND venue_id = ? AND sector_id = ?
               ORDER BY unit_idx ASC`
	rows, err := r.db.QueryContext(ctx, q, ref.EventID, ref.VenueID, ref.SectorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SeatState, 0)
	for rows.Next() {
		var st SeatState
		if err := rows.Scan(&st.UnitIdx, &st.State); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SoldCountByEventTx counts sold units of an event within a transaction.
// Event deletion is only permitted while this is zero.  The count locks
// every unit row of the event, so a delete transaction blocks behind any
// in-flight finalize and then reads its outcome instead of an empty
// snapshot taken before the finalize committed.
func (r *UnitRepo) SoldCountByEventTx(ctx context.Context, tx *sql.Tx, eventID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, soldCountByEventQuery, eventID).Scan(&n)
	return n, err
}

const soldCountByEventQuery = `SELECT COALESCE(SUM(state = 'SOLD'), 0) FROM units WHERE event_id = ? FOR UPDATE`
