package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/alperoz/ticket-sales/internal/model"
)

// EventRepo provides persistence for events.  Creating an event also
// materializes the sellable unit rows for every sector of its venue, so
// both live in the same transaction.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the underlying handle.
func (r *EventRepo) DB() *sql.DB { return r.db }

// CreateTx inserts an event within an existing transaction and returns
// its generated ID.  The caller seeds the units afterwards and commits
// or rolls back the transaction.
func (r *EventRepo) CreateTx(ctx context.Context, tx *sql.Tx, organizerID, venueID uint64, title string, startsAt time.Time) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (organizer_id, venue_id, title, starts_at) VALUES (?, ?, ?, ?)`,
		organizerID, venueID, title, startsAt.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID returns an event by ID.  ErrEventNotFound is returned when no
// row exists.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	const q = `SELECT id, organizer_id, venue_id, title, starts_at, created_at, updated_at
               FROM events WHERE id = ?`
	var e model.Event
	err := r.db.QueryRowContext(ctx, q, id).Scan(&e.ID, &e.OrganizerID, &e.VenueID, &e.Title, &e.StartsAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ListUpcoming returns events starting after now, soonest first, for
// public browsing.
func (r *EventRepo) ListUpcoming(ctx context.Context) ([]model.Event, error) {
	const q = `SELECT id, organizer_id, venue_id, title, starts_at, created_at, updated_at
               FROM events WHERE starts_at > UTC_TIMESTAMP() ORDER BY starts_at ASC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Event, 0)
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.OrganizerID, &e.VenueID, &e.Title, &e.StartsAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByOrganizer returns the organizer's events, newest first.
func (r *EventRepo) ListByOrganizer(ctx context.Context, organizerID uint64) ([]model.Event, error) {
	const q = `SELECT id, organizer_id, venue_id, title, starts_at, created_at, updated_at
               FROM events WHERE organizer_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Event, 0)
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.OrganizerID, &e.VenueID, &e.Title, &e.StartsAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchByTitle returns upcoming events whose title matches the given
// term, soonest first.  The term is wrapped in wildcards; an empty term
// behaves like ListUpcoming.
func (r *EventRepo) SearchByTitle(ctx context.Context, term string) ([]model.Event, error) {
	const q = `SELECT id, organizer_id, venue_id, title, starts_at, created_at, updated_at
               FROM events
               WHERE starts_at > UTC_TIMESTAMP() AND title LIKE ?
               ORDER BY starts_at ASC`
	rows, err := r.db.QueryContext(ctx, q, "%"+term+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Event, 0)
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.OrganizerID, &e.VenueID, &e.Title, &e.StartsAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTx removes an event and its units within a transaction after
// verifying ownership.  It returns ErrEventNotFound when the event does
// not exist and ErrForbidden when the caller is not its organizer.  The
// caller must have already verified that the event has zero sold units
// (see UnitRepo.SoldCountByEventTx); unit rows for the event are removed
// here since they reference nothing once the event is gone.
func (r *EventRepo) DeleteTx(ctx context.Context, tx *sql.Tx, eventID, organizerID uint64) error {
	var actual uint64
	err := tx.QueryRowContext(ctx, `SELECT organizer_id FROM events WHERE id = ?`, eventID).Scan(&actual)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrEventNotFound
		}
		return err
	}
	if actual != organizerID {
		return ErrForbidden
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE event_id = ?`, eventID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, eventID)
	return err
}
