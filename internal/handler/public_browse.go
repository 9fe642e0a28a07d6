// Package handler exposes HTTP handlers for both authenticated and public endpoints.
// This file defines handlers for the public browsing API. These routes allow
// unauthenticated users to discover events, check per-sector availability and
// view seat maps without requiring authentication. Sensitive fields (organizer
// IDs, timestamps, etc.) are filtered from responses.

package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/alperoz/ticket-sales/internal/model"
	"github.com/alperoz/ticket-sales/internal/repository"
	"github.com/alperoz/ticket-sales/internal/reservation"
)

// PublicHandler aggregates repositories needed for unauthenticated browsing.
// It produces sanitized responses suitable for public consumption.
type PublicHandler struct {
	EventRepo *repository.EventRepo // provides access to event data
	VenueRepo *repository.VenueRepo // provides access to venue data
	UnitRepo  *repository.UnitRepo  // provides access to inventory counts
}

// PublicEvent represents an event in list responses. It contains only
// safe fields.
type PublicEvent struct {
	ID       uint64    `json:"id"`
	Title    string    `json:"title"`
	VenueID  uint64    `json:"venue_id"`
	StartsAt time.Time `json:"starts_at"`
}

// PublicVenue represents a venue embedded in event detail responses.
type PublicVenue struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	City string `json:"city"`
}

// PublicEventDetail is the detailed event response with venue info.
type PublicEventDetail struct {
	ID       uint64       `json:"id"`
	Title    string       `json:"title"`
	StartsAt time.Time    `json:"starts_at"`
	Venue    *PublicVenue `json:"venue,omitempty"`
}

// ListEvents returns upcoming events, soonest first. An optional ?q=
// parameter switches to a title substring search. Response JSON contains
// an "items" array of PublicEvent.
func (h *PublicHandler) ListEvents(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		events []model.Event
		err    error
	)
	if term := strings.TrimSpace(c.QueryParam("q")); term != "" {
		events, err = h.EventRepo.SearchByTitle(ctx, term)
	} else {
		events, err = h.EventRepo.ListUpcoming(ctx)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]PublicEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, PublicEvent{ID: ev.ID, Title: ev.Title, VenueID: ev.VenueID, StartsAt: ev.StartsAt})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// GetEvent returns details of a single event for unauthenticated users,
// joining the venue name by following the foreign key. Only non-sensitive
// fields are included.
func (h *PublicHandler) GetEvent(c echo.Context) error {
	ctx := c.Request().Context()
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ev, err := h.EventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	resp := PublicEventDetail{ID: ev.ID, Title: ev.Title, StartsAt: ev.StartsAt}
	if venue, err := h.VenueRepo.GetByID(ctx, ev.VenueID); err == nil {
		resp.Venue = &PublicVenue{ID: venue.ID, Name: venue.Name, City: venue.City}
	}
	return c.JSON(http.StatusOK, resp)
}

// GetEventAvailability lists each sector of the event with its capacity
// and per-state counts so buyers can see what is left before reserving.
func (h *PublicHandler) GetEventAvailability(c echo.Context) error {
	ctx := c.Request().Context()
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	// ensure event exists
	if _, err := h.EventRepo.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	counts, err := h.UnitRepo.AvailabilityByEvent(ctx, eventID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": counts})
}

// GetSeatMap returns every seat of an enumerated sector with its current
// state, ordered by seat index. Non-enumerated sectors have no seats to
// show and yield a 400.
func (h *PublicHandler) GetSeatMap(c echo.Context) error {
	ctx := c.Request().Context()
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	sectorID, err := strconv.ParseUint(c.Param("sector_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid sector id"})
	}
	ev, err := h.EventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	ref := reservation.SectorRef{EventID: eventID, VenueID: ev.VenueID, SectorID: sectorID}
	info, err := h.UnitRepo.Sector(ctx, ref)
	if err != nil {
		if errors.Is(err, reservation.ErrSectorNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "sector not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if info.Type != reservation.SectorEnumerated {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sector has no seat map"})
	}
	seats, err := h.UnitRepo.SeatMap(ctx, ref)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": seats})
}
