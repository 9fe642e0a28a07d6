package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/alperoz/ticket-sales/internal/model"
)

// SaleRepo provides read access to confirmed sales and their line items.
// Sales are only ever created by the reservation engine at finalize
// time, so this repository exposes no insert methods.
type SaleRepo struct {
	db *sql.DB
}

// NewSaleRepo returns a new SaleRepo bound to the given database.
func NewSaleRepo(db *sql.DB) *SaleRepo { return &SaleRepo{db: db} }

// SaleLineDetail is one line item of a sale as shown to buyers,
// including the concrete unit indices the line owns.
type SaleLineDetail struct {
	LineNo      uint32   `json:"line_no"`
	EventID     uint64   `json:"event_id"`
	EventTitle  string   `json:"event_title"`
	VenueID     uint64   `json:"venue_id"`
	VenueName   string   `json:"venue_name"`
	SectorID    uint64   `json:"sector_id"`
	SectorName  string   `json:"sector_name"`
	SectorType  string   `json:"sector_type"`
	Quantity    uint32   `json:"quantity"`
	UnitIndices []uint32 `json:"unit_indices,omitempty"`
}

// SaleDetail is a sale with its line items, returned by ListByClient and
// GetByIDForClient for display to buyers.
type SaleDetail struct {
	ID        uint64           `json:"id"`
	SaleRef   string           `json:"sale_ref"`
	CreatedAt time.Time        `json:"created_at"`
	Lines     []SaleLineDetail `json:"lines"`
}

// GetByIDForClient returns a single sale with its line items, enforcing
// that the sale belongs to the given client.  sql.ErrNoRows is returned
// when the sale does not exist or is owned by someone else.
func (r *SaleRepo) GetByIDForClient(ctx context.Context, saleID, clientID uint64) (*SaleDetail, error) {
	const q = `SELECT id, sale_ref, created_at FROM sales WHERE id = ? AND client_id = ?`
	s := model.Sale{ClientID: clientID}
	if err := r.db.QueryRowContext(ctx, q, saleID, clientID).Scan(&s.ID, &s.SaleRef, &s.CreatedAt); err != nil {
		return nil, err
	}
	det := SaleDetail{ID: s.ID, SaleRef: s.SaleRef, CreatedAt: s.CreatedAt}
	lines, err := r.linesForSales(ctx, []uint64{det.ID})
	if err != nil {
		return nil, err
	}
	det.Lines = lines[det.ID]
	if det.Lines == nil {
		det.Lines = []SaleLineDetail{}
	}
	return &det, nil
}

// ListByClient returns all sales of a client, newest first, each with
// its line items and unit indices.
func (r *SaleRepo) ListByClient(ctx context.Context, clientID uint64) ([]SaleDetail, error) {
	const q = `SELECT id, sale_ref, created_at FROM sales WHERE client_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]SaleDetail, 0)
	ids := make([]uint64, 0)
	for rows.Next() {
		s := model.Sale{ClientID: clientID}
		if err := rows.Scan(&s.ID, &s.SaleRef, &s.CreatedAt); err != nil {
			return nil, err
		}
		d := SaleDetail{ID: s.ID, SaleRef: s.SaleRef, CreatedAt: s.CreatedAt, Lines: []SaleLineDetail{}}
		details = append(details, d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return details, nil
	}
	lines, err := r.linesForSales(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range details {
		if l, ok := lines[details[i].ID]; ok {
			details[i].Lines = l
		}
	}
	return details, nil
}

// linesForSales loads the line items for a set of sales in two queries:
// one for the items joined with catalog names, one for the sold unit
// indices grouped back onto their lines.
func (r *SaleRepo) linesForSales(ctx context.Context, saleIDs []uint64) (map[uint64][]SaleLineDetail, error) {
	ids := make([]interface{}, 0, len(saleIDs))
	ph := make([]string, 0, len(saleIDs))
	for _, id := range saleIDs {
		ids = append(ids, id)
		ph = append(ph, "?")
	}
	itemQ := `SELECT si.sale_id, si.line_no, si.event_id, e.title, si.venue_id, v.name,
                     si.sector_id, s.name, s.sector_type, si.quantity
              FROM sale_items si
              JOIN events e ON e.id = si.event_id
              JOIN venues v ON v.id = si.venue_id
              JOIN sectors s ON s.id = si.sector_id
              WHERE si.sale_id IN (` + strings.Join(ph, ",") + `)
              ORDER BY si.sale_id, si.line_no`
	rows, err := r.db.QueryContext(ctx, itemQ, ids...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64][]SaleLineDetail)
	// Position of each (sale, line) pair inside out for unit attachment.
	type lineKey struct {
		saleID uint64
		lineNo uint32
	}
	pos := make(map[lineKey]int)
	for rows.Next() {
		var saleID uint64
		var ln SaleLineDetail
		if err := rows.Scan(&saleID, &ln.LineNo, &ln.EventID, &ln.EventTitle, &ln.VenueID, &ln.VenueName,
			&ln.SectorID, &ln.SectorName, &ln.SectorType, &ln.Quantity); err != nil {
			return nil, err
		}
		pos[lineKey{saleID, ln.LineNo}] = len(out[saleID])
		out[saleID] = append(out[saleID], ln)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	unitQ := `SELECT sale_id, line_no, unit_idx FROM units
              WHERE state = 'SOLD' AND sale_id IN (` + strings.Join(ph, ",") + `)
              ORDER BY sale_id, line_no, unit_idx`
	urows, err := r.db.QueryContext(ctx, unitQ, ids...)
	if err != nil {
		return nil, err
	}
	defer urows.Close()
	for urows.Next() {
		var saleID uint64
		var lineNo uint32
		var idx uint32
		if err := urows.Scan(&saleID, &lineNo, &idx); err != nil {
			return nil, err
		}
		i, ok := pos[lineKey{saleID, lineNo}]
		if !ok {
			continue
		}
		// Unit indices only mean something to buyers in enumerated
		// sectors; non-enumerated slots are interchangeable.
		if out[saleID][i].SectorType == "ENUMERATED" {
			out[saleID][i].UnitIndices = append(out[saleID][i].UnitIndices, idx)
		}
	}
	if err := urows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
