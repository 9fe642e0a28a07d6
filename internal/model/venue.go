package model

import "time"

// Venue is a place where events are hosted.  A venue belongs to an
// organizer and is divided into one or more sectors.
//
// Fields:
//  ID        – primary key identifier.
//  OwnerID   – organizer account that manages the venue.
//  Name      – display name of the venue.
//  City      – city the venue is located in.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Venue struct {
	ID        uint64    // venues.id
	OwnerID   uint64    // venues.owner_id
	Name      string    // venues.name
	City      string    // venues.city
	CreatedAt time.Time // venues.created_at
	UpdatedAt time.Time // venues.updated_at
}

// Sector is a sellable area of a venue.  Its type determines how buyers
// address units: ENUMERATED sectors sell specific seats identified by a
// positive unit index, NON_ENUMERATED sectors sell interchangeable
// general-admission slots addressed only by quantity.
//
// Fields:
//  ID         – primary key identifier.
//  VenueID    – venue this sector belongs to.
//  Name       – display name (e.g. "Stalls", "Floor").
//  SectorType – ENUMERATED or NON_ENUMERATED.
//  Capacity   – number of sellable units seeded per event.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Sector struct {
	ID         uint64    // sectors.id
	VenueID    uint64    // sectors.venue_id
	Name       string    // sectors.name
	SectorType string    // sectors.sector_type
	Capacity   uint32    // sectors.capacity
	CreatedAt  time.Time // sectors.created_at
	UpdatedAt  time.Time // sectors.updated_at
}
