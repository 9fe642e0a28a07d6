// Package reservation implements the seat/ticket reservation engine: the
// component that allocates a finite pool of sellable units to concurrent
// purchase attempts.  It exposes three operations (Reserve, Finalize and
// Release), each running as a single atomic unit of work against the
// inventory store.  Correctness comes from the store's conditional bulk
// transitions, not from in-process locking, so multiple engine instances
// can safely share one database.
package reservation

import (
	"errors"
	"sort"
)

// State enumerates the lifecycle of a sellable unit.  The only legal
// transitions are AVAILABLE -> RESERVED -> SOLD and RESERVED -> AVAILABLE.
type State string

const (
	StateAvailable State = "AVAILABLE" // unit can be reserved
	StateReserved  State = "RESERVED"  // unit is held pending payment
	StateSold      State = "SOLD"      // unit belongs to a confirmed sale
)

// SectorType distinguishes how buyers address a sector's units.
type SectorType string

const (
	// SectorEnumerated means buyers pick specific unit indices (physical seats).
	SectorEnumerated SectorType = "ENUMERATED"
	// SectorNonEnumerated means buyers only pick a quantity; any free slot will do.
	SectorNonEnumerated SectorType = "NON_ENUMERATED"
)

// SectorRef identifies one sector of one venue for one event.  Every unit
// in the inventory store lives under exactly one SectorRef.
type SectorRef struct {
	EventID  uint64 `json:"event_id"`
	VenueID  uint64 `json:"venue_id"`
	SectorID uint64 `json:"sector_id"`
}

// less orders refs by (event, venue, sector) ascending.  The engine locks
// sectors in this global order so that two requests touching overlapping
// sector sets cannot deadlock each other.
func (r SectorRef) less(o SectorRef) bool {
	if r.EventID != o.EventID {
		return r.EventID < o.EventID
	}
	if r.VenueID != o.VenueID {
		return r.VenueID < o.VenueID
	}
	return r.SectorID < o.SectorID
}

// SectorInfo is what the engine needs to know about a sector before
// touching its units: how buyers address it and how many units were seeded.
type SectorInfo struct {
	Type     SectorType
	Capacity uint32
}

// Group is one line of a purchase request: a set of units wanted within a
// single (event, venue, sector).  For enumerated sectors the caller may
// name exact unit indices; otherwise Quantity asks for that many arbitrary
// available units.  When both are set, UnitIndices wins.
type Group struct {
	EventID     uint64   `json:"event_id"`
	VenueID     uint64   `json:"venue_id"`
	SectorID    uint64   `json:"sector_id"`
	UnitIndices []uint32 `json:"unit_indices,omitempty"`
	Quantity    uint32   `json:"quantity,omitempty"`
}

// Ref returns the sector reference of the group.
func (g Group) Ref() SectorRef {
	return SectorRef{EventID: g.EventID, VenueID: g.VenueID, SectorID: g.SectorID}
}

// ResolvedGroup reports the concrete unit indices a Reserve call ended up
// claiming for one group.  Callers must pass these same indices back to
// Finalize or Release.
type ResolvedGroup struct {
	EventID     uint64   `json:"event_id"`
	VenueID     uint64   `json:"venue_id"`
	SectorID    uint64   `json:"sector_id"`
	UnitIndices []uint32 `json:"unit_indices"`
}

// Ref returns the sector reference of the resolved group.
func (g ResolvedGroup) Ref() SectorRef {
	return SectorRef{EventID: g.EventID, VenueID: g.VenueID, SectorID: g.SectorID}
}

// Engine error taxonomy.  ErrConcurrencyConflict is the only retryable
// failure: the caller lost a race and should re-issue the whole request
// from scratch.  Everything else is fatal for the given input.  All
// failures leave the inventory store unchanged.
var (
	// ErrSectorNotFound reports a bad (event, venue, sector) reference.
	ErrSectorNotFound = errors.New("sector not found")
	// ErrInsufficientInventory reports fewer available units than requested,
	// detected before any transition was attempted.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrConcurrencyConflict reports a lost race: some requested unit was
	// claimed by a concurrent request between candidate selection and the
	// conditional transition.  Retryable by re-running the whole request.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrMalformedRequest reports missing identifiers, zero/negative
	// quantities or out-of-range unit indices.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrPurchaseCapExceeded reports that finalizing would push the client
	// past the per-event purchase cap.
	ErrPurchaseCapExceeded = errors.New("purchase cap exceeded")
	// ErrUnitsNotReserved reports a finalize attempt on units that are no
	// longer in the RESERVED state (e.g. released before payment confirmed).
	ErrUnitsNotReserved = errors.New("units no longer reserved")
)

// dedupeSorted returns the unique indices of in, sorted ascending.  Buyers
// occasionally double-click a seat; duplicates collapse to a single claim.
func dedupeSorted(in []uint32) []uint32 {
	out := make([]uint32, 0, len(in))
	seen := make(map[uint32]struct{}, len(in))
	for _, idx := range in {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
