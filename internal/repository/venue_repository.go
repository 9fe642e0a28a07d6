package repository

import (
	"context"
	"database/sql"

	"github.com/alperoz/ticket-sales/internal/model"
)

// VenueRepo provides persistence for venues and their sectors.  A venue
// belongs to an organizer; its sectors define the sellable areas whose
// units get materialized per event.
type VenueRepo struct {
	db *sql.DB
}

// NewVenueRepo returns a new VenueRepo bound to the given database.
func NewVenueRepo(db *sql.DB) *VenueRepo { return &VenueRepo{db: db} }

// DB exposes the underlying handle for handlers that need to open
// transactions spanning several repositories.
func (r *VenueRepo) DB() *sql.DB { return r.db }

// Create inserts a venue and returns its generated ID.
func (r *VenueRepo) Create(ctx context.Context, ownerID uint64, name, city string) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO venues (owner_id, name, city) VALUES (?, ?, ?)`,
		ownerID, name, city)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// SectorSpec describes one sector to create under a venue.
type SectorSpec struct {
	Name       string
	SectorType string
	Capacity   uint32
}

// CreateSectorsBulk inserts multiple sectors for a venue in one
// statement.  Passing an empty slice has no effect and returns nil.
func (r *VenueRepo) CreateSectorsBulk(ctx context.Context, venueID uint64, sectors []SectorSpec) error {
	if len(sectors) == 0 {
		return nil
	}
	query := `INSERT INTO sectors (venue_id, name, sector_type, capacity) VALUES `
	args := make([]interface{}, 0, len(sectors)*4)
	for i, s := range sectors {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, venueID, s.Name, s.SectorType, s.Capacity)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// GetByID returns a venue by ID.  ErrVenueNotFound is returned when no
// row exists.
func (r *VenueRepo) GetByID(ctx context.Context, id uint64) (*model.Venue, error) {
	const q = `SELECT id, owner_id, name, city, created_at, updated_at FROM venues WHERE id = ?`
	var v model.Venue
	err := r.db.QueryRowContext(ctx, q, id).Scan(&v.ID, &v.OwnerID, &v.Name, &v.City, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrVenueNotFound
		}
		return nil, err
	}
	return &v, nil
}

// SectorsByVenue lists the sectors of a venue ordered by ID.
func (r *VenueRepo) SectorsByVenue(ctx context.Context, venueID uint64) ([]model.Sector, error) {
	const q = `SELECT id, venue_id, name, sector_type, capacity, created_at, updated_at
               FROM sectors WHERE venue_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Sector, 0)
	for rows.Next() {
		var s model.Sector
		if err := rows.Scan(&s.ID, &s.VenueID, &s.Name, &s.SectorType, &s.Capacity, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByOwner returns all venues managed by the given organizer, newest
// first.
func (r *VenueRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Venue, error) {
	const q = `SELECT id, owner_id, name, city, created_at, updated_at
               FROM venues WHERE owner_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Venue, 0)
	for rows.Next() {
		var v model.Venue
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.Name, &v.City, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll returns every venue, for public browsing.
func (r *VenueRepo) ListAll(ctx context.Context) ([]model.Venue, error) {
	const q = `SELECT id, owner_id, name, city, created_at, updated_at FROM venues ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Venue, 0)
	for rows.Next() {
		var v model.Venue
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.Name, &v.City, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
