package handler

import (
	"database/sql" // sentinel errors from repository reads
	"errors"       // errors.Is comparisons
	"net/http"     // HTTP status codes
	"strconv"      // parsing path parameters

	"github.com/labstack/echo/v4"
	"github.com/skip2/go-qrcode"

	"github.com/alperoz/ticket-sales/internal/repository"
)

// TicketHandler serves buyers their confirmed sales: listing, detail
// and a scannable QR code for entry control.
type TicketHandler struct {
	SaleRepo *repository.SaleRepo
}

// NewTicketHandler constructs a TicketHandler.
func NewTicketHandler(saleRepo *repository.SaleRepo) *TicketHandler {
	if saleRepo == nil {
		panic("nil repository passed to NewTicketHandler")
	}
	return &TicketHandler{SaleRepo: saleRepo}
}

// ListSales handles GET /v1/my-sales.  It returns all confirmed sales
// of the current client with line items and, for enumerated sectors,
// the concrete seat indices.  When no sales exist an empty array is
// returned.
func (h *TicketHandler) ListSales(c echo.Context) error {
	clientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	details, err := h.SaleRepo.ListByClient(c.Request().Context(), clientID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load sales"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": details})
}

// GetSale handles GET /v1/sales/:id.  It returns one sale of the
// current client, 404 when it does not exist or belongs to someone
// else.
func (h *TicketHandler) GetSale(c echo.Context) error {
	clientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	saleID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || saleID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid sale id"})
	}
	det, err := h.SaleRepo.GetByIDForClient(c.Request().Context(), saleID, clientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "sale not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch sale"})
	}
	return c.JSON(http.StatusOK, echo.Map{"item": det})
}

// GetSaleQR handles GET /v1/sales/:id/qr.  It renders the sale's opaque
// reference as a PNG QR code suitable for entry scanners.  The
// reference alone is encoded so the code leaks nothing about the buyer.
func (h *TicketHandler) GetSaleQR(c echo.Context) error {
	clientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	saleID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || saleID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid sale id"})
	}
	det, err := h.SaleRepo.GetByIDForClient(c.Request().Context(), saleID, clientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "sale not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch sale"})
	}
	png, err := qrcode.Encode(det.SaleRef, qrcode.Medium, 256)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to render qr code"})
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
