package handler // handler package contains organizer-specific venue handlers

import (
	"net/http" // http provides status code constants
	"strconv"  // strconv parses string identifiers to numeric types
	"strings"  // strings offers trimming utilities

	"github.com/labstack/echo/v4"

	"github.com/alperoz/ticket-sales/internal/repository"
	"github.com/alperoz/ticket-sales/internal/reservation"
)

// OrganizerHandler aggregates repositories needed by organizer endpoints:
// venue management, event scheduling and inventory seeding.
type OrganizerHandler struct {
	VenueRepo *repository.VenueRepo
	EventRepo *repository.EventRepo
	UnitRepo  *repository.UnitRepo
}

// NewOrganizerHandler constructs an OrganizerHandler and panics if any
// repository is missing, surfacing wiring mistakes at startup.
func NewOrganizerHandler(venueRepo *repository.VenueRepo, eventRepo *repository.EventRepo, unitRepo *repository.UnitRepo) *OrganizerHandler {
	if venueRepo == nil || eventRepo == nil || unitRepo == nil {
		panic("nil repository passed to NewOrganizerHandler")
	}
	return &OrganizerHandler{VenueRepo: venueRepo, EventRepo: eventRepo, UnitRepo: unitRepo}
}

// sectorReq is one sector definition in a venue creation request.
type sectorReq struct {
	Name       string `json:"name"`
	SectorType string `json:"sector_type"`
	Capacity   uint32 `json:"capacity"`
}

// CreateVenue handles POST /v1/venues. It creates a venue together with
// its sectors in a single request; a venue without sectors cannot host
// sellable events, so at least one sector is required.
func (h *OrganizerHandler) CreateVenue(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Name    string      `json:"name"`
		City    string      `json:"city"`
		Sectors []sectorReq `json:"sectors"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	name := strings.TrimSpace(body.Name)
	city := strings.TrimSpace(body.City)
	if name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	if len(body.Sectors) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one sector is required"})
	}
	specs := make([]repository.SectorSpec, 0, len(body.Sectors))
	for _, s := range body.Sectors {
		sname := strings.TrimSpace(s.Name)
		if sname == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "sector name is required"})
		}
		st := reservation.SectorType(strings.ToUpper(strings.TrimSpace(s.SectorType)))
		if st != reservation.SectorEnumerated && st != reservation.SectorNonEnumerated {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "sector_type must be ENUMERATED or NON_ENUMERATED"})
		}
		if s.Capacity == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "sector capacity must be positive"})
		}
		specs = append(specs, repository.SectorSpec{Name: sname, SectorType: string(st), Capacity: s.Capacity})
	}
	ctx := c.Request().Context()
	venueID, err := h.VenueRepo.Create(ctx, ownerID, name, city)
	if err != nil {
		if strings.Contains(err.Error(), "1062") { // duplicate key
			return c.JSON(http.StatusConflict, echo.Map{"error": "venue name already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create venue"})
	}
	if err := h.VenueRepo.CreateSectorsBulk(ctx, venueID, specs); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create sectors"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": venueID})
}

// ListVenues handles GET /v1/venues and returns all venues owned by the
// authenticated organizer.
func (h *OrganizerHandler) ListVenues(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.VenueRepo.ListByOwner(c.Request().Context(), ownerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetVenue handles GET /v1/venues/:id. It returns the venue with its
// sectors; only the owner may view it through this endpoint.
func (h *OrganizerHandler) GetVenue(c echo.Context) error {
	ownerID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx := c.Request().Context()
	venue, err := h.VenueRepo.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrVenueNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "venue not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	if venue.OwnerID != ownerID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	sectors, err := h.VenueRepo.SectorsByVenue(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"venue": venue, "sectors": sectors})
}
