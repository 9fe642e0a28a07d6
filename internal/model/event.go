package model

import "time"

// Event is one ticketed occasion hosted at a venue.  Creating an event
// materializes one sellable unit row per (sector, slot) of the venue;
// deleting an event is only permitted while none of its units are sold.
//
// Fields:
//  ID          – primary key identifier.
//  OrganizerID – account that created the event.
//  VenueID     – venue hosting the event.
//  Title       – display title.
//  StartsAt    – when the event begins (UTC).
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Event struct {
	ID          uint64    // events.id
	OrganizerID uint64    // events.organizer_id
	VenueID     uint64    // events.venue_id
	Title       string    // events.title
	StartsAt    time.Time // events.starts_at
	CreatedAt   time.Time // events.created_at
	UpdatedAt   time.Time // events.updated_at
}
