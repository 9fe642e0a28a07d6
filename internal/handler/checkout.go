package handler

import (
	"context"      // detached context for post-commit event publishing
	"database/sql" // sentinel errors returned from repository reads
	"errors"       // errors.Is comparisons against engine sentinels
	"log"          // background publish failures are logged, not surfaced
	"net/http"     // HTTP status codes
	"time"         // timestamps on published events

	"github.com/google/uuid"      // opaque payment intent references
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/alperoz/ticket-sales/internal/queue"
	"github.com/alperoz/ticket-sales/internal/repository"
	"github.com/alperoz/ticket-sales/internal/reservation"
	queue_publisher "github.com/alperoz/ticket-sales/internal/service"
)

// CheckoutHandler is the thin adapter between HTTP checkout traffic and
// the reservation engine.  It owns no inventory logic: reserve, confirm
// and release all delegate to the engine, and this layer only parses
// requests, maps sentinel errors to HTTP statuses and publishes the
// sale.completed event after a successful confirmation.
type CheckoutHandler struct {
	Engine   *reservation.Engine
	SaleRepo *repository.SaleRepo
}

// NewCheckoutHandler constructs a CheckoutHandler.  Both dependencies
// must be non-nil.
func NewCheckoutHandler(engine *reservation.Engine, saleRepo *repository.SaleRepo) *CheckoutHandler {
	if engine == nil || saleRepo == nil {
		panic("nil dependency passed to NewCheckoutHandler")
	}
	return &CheckoutHandler{Engine: engine, SaleRepo: saleRepo}
}

// reserveReq is the body of POST /v1/checkout/reserve.
type reserveReq struct {
	Groups []reservation.Group `json:"groups"`
}

// confirmReq is the body of POST /v1/checkout/confirm.  In production
// the payment provider's webhook carries the payment reference; groups
// are echoed back from the reserve response.
type confirmReq struct {
	PaymentRef string                      `json:"payment_ref"`
	Groups     []reservation.ResolvedGroup `json:"groups"`
}

// releaseReq is the body of POST /v1/checkout/release.
type releaseReq struct {
	Groups []reservation.ResolvedGroup `json:"groups"`
}

// engineError translates reservation engine sentinels into HTTP
// responses.  ErrConcurrencyConflict is marked retryable so clients know
// to re-issue the whole request; everything else is final for the given
// input.
func engineError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, reservation.ErrMalformedRequest):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request"})
	case errors.Is(err, reservation.ErrSectorNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "sector not found"})
	case errors.Is(err, reservation.ErrInsufficientInventory):
		return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient inventory"})
	case errors.Is(err, reservation.ErrConcurrencyConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "lost race for requested units", "retryable": true})
	case errors.Is(err, reservation.ErrPurchaseCapExceeded):
		return c.JSON(http.StatusConflict, echo.Map{"error": "purchase cap exceeded"})
	case errors.Is(err, reservation.ErrUnitsNotReserved):
		return c.JSON(http.StatusConflict, echo.Map{"error": "units no longer reserved"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "reservation timed out"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reservation failed"})
}

// Reserve handles POST /v1/checkout/reserve.  It attempts to hold every
// requested unit atomically across all groups and returns the resolved
// unit indices together with a fresh payment reference the caller
// passes to the payment provider.  The entire request either succeeds
// or leaves the inventory untouched.
func (h *CheckoutHandler) Reserve(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body reserveReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	resolved, err := h.Engine.Reserve(c.Request().Context(), body.Groups)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"payment_ref": uuid.NewString(),
		"groups":      resolved,
	})
}

// Confirm handles POST /v1/checkout/confirm.  It stands in for the
// payment provider's success callback: the reserved units are finalized
// into a sale for the authenticated client.  Duplicate confirmations
// are absorbed by the engine and return the same sale.  On a first
// successful confirmation the sale.completed event is published in the
// background; publish failures never fail the request.
func (h *CheckoutHandler) Confirm(c echo.Context) error {
	clientID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body confirmReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	saleID, created, err := h.Engine.Finalize(c.Request().Context(), clientID, body.Groups)
	if err != nil {
		return engineError(c, err)
	}
	// Absorbed duplicates skip the publish: the event already went out
	// when the sale was created.
	if created {
		go h.publishSaleCompleted(saleID, clientID, body.PaymentRef)
	}
	return c.JSON(http.StatusCreated, echo.Map{"sale_id": saleID})
}

// Release handles POST /v1/checkout/release.  The payment adapter calls
// this on payment failure, expiry or cancellation; it is idempotent and
// reports how many units actually returned to the pool, which is zero
// on repeated deliveries of the same failure.
func (h *CheckoutHandler) Release(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body releaseReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	released, err := h.Engine.Release(c.Request().Context(), body.Groups)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// publishSaleCompleted loads the freshly created sale and publishes the
// sale.completed event.  It runs detached from the request; errors are
// logged and dropped because downstream consumers can always rebuild
// from the database.
func (h *CheckoutHandler) publishSaleCompleted(saleID, clientID uint64, paymentRef string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	det, err := h.SaleRepo.GetByIDForClient(ctx, saleID, clientID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("checkout: load sale %d for event publish failed: %v", saleID, err)
		}
		return
	}
	ev := queue.SaleCompletedEvent{
		SaleID:      det.ID,
		SaleRef:     det.SaleRef,
		ClientID:    clientID,
		PaymentRef:  paymentRef,
		CompletedAt: det.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, ln := range det.Lines {
		ev.TotalUnits += ln.Quantity
		ev.Lines = append(ev.Lines, queue.SaleLine{
			LineNo:      ln.LineNo,
			EventTitle:  ln.EventTitle,
			VenueName:   ln.VenueName,
			SectorName:  ln.SectorName,
			Quantity:    ln.Quantity,
			UnitIndices: ln.UnitIndices,
		})
	}
	_ = queue_publisher.PublishSaleCompleted(ctx, ev)
}
