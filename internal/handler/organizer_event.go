package handler // handler package contains organizer-specific event handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/alperoz/ticket-sales/internal/repository"
)

// CreateEvent handles POST /v1/events. It schedules an event at one of
// the organizer's venues and seeds one inventory unit per sector slot,
// all inside a single transaction so an event never exists half-seeded.
func (h *OrganizerHandler) CreateEvent(c echo.Context) error {
	organizerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		VenueID  uint64    `json:"venue_id"`
		Title    string    `json:"title"`
		StartsAt time.Time `json:"starts_at"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}
	if body.VenueID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "venue_id is required"})
	}
	if body.StartsAt.IsZero() || !body.StartsAt.After(time.Now().UTC()) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be in the future"})
	}

	ctx := c.Request().Context()
	venue, err := h.VenueRepo.GetByID(ctx, body.VenueID)
	if err != nil {
		if err == repository.ErrVenueNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "venue not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	if venue.OwnerID != organizerID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	sectors, err := h.VenueRepo.SectorsByVenue(ctx, body.VenueID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	if len(sectors) == 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "venue has no sectors"})
	}

	tx, err := h.EventRepo.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	eventID, err := h.EventRepo.CreateTx(ctx, tx, organizerID, body.VenueID, title, body.StartsAt.UTC())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create event"})
	}
	for _, s := range sectors {
		if err := h.UnitRepo.CreateBulkTx(ctx, tx, eventID, body.VenueID, s.ID, s.Capacity); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not seed inventory"})
		}
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create event"})
	}
	committed = true
	return c.JSON(http.StatusCreated, echo.Map{"id": eventID})
}

// ListEvents handles GET /v1/my-events and returns events scheduled by
// the authenticated organizer, newest first.
func (h *OrganizerHandler) ListEvents(c echo.Context) error {
	organizerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.EventRepo.ListByOrganizer(c.Request().Context(), organizerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// DeleteEvent handles DELETE /v1/events/:id. An event can only be
// removed by its organizer and only while nothing has been sold; the
// sold-count check locks the event's unit rows in the same transaction
// as the deletes, so a concurrent finalize cannot slip a sale under the
// delete.
func (h *OrganizerHandler) DeleteEvent(c echo.Context) error {
	organizerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx := c.Request().Context()
	tx, err := h.EventRepo.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sold, err := h.UnitRepo.SoldCountByEventTx(ctx, tx, eventID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	if sold > 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "event has sold tickets"})
	}
	if err := h.EventRepo.DeleteTx(ctx, tx, eventID, organizerID); err != nil {
		switch err {
		case repository.ErrEventNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		case repository.ErrForbidden:
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
		}
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	committed = true
	return c.NoContent(http.StatusNoContent)
}
