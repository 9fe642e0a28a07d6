package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/alperoz/ticket-sales/internal/handler"    // import the handlers that implement business logic
	"github.com/alperoz/ticket-sales/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	// Operations that do not require an existing session: register, login
	// and the two refresh variants.  Each handler generates or exchanges
	// tokens itself.
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Issues a new access token without rotating the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout does not require JWT authentication; the handler accepts a
	// refresh token in the body or a bearer token in the header.
	g.POST("/logout", a.Logout)

	// Routes that require a valid access token.  Both roles may call /v1/me.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("ORGANIZER", "CUSTOMER"))
	auth.GET("/me", a.Me)

	// Alias so clients can call either /v1/auth/logout or /v1/logout.
	e.POST("/v1/logout", a.Logout)
}

// RegisterPublic registers unauthenticated browse endpoints.  The provided
// PublicHandler returns sanitized data for events, availability and seat
// maps.  No JWT or role middleware applies; these routes are intended for
// guests deciding what to buy.  The optional cache middleware is applied to
// the read-heavy availability endpoints.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	// Upcoming events, with an optional ?q= title search.
	e.GET("/v1/events", p.ListEvents, cache)
	// Event details with venue info.
	e.GET("/v1/events/:id", p.GetEvent, cache)
	// Per-sector availability counts for an event.
	e.GET("/v1/events/:id/availability", p.GetEventAvailability, cache)
	// Seat map of an enumerated sector.
	e.GET("/v1/events/:id/sectors/:sector_id/seats", p.GetSeatMap)
}

// RegisterCheckout registers the reservation flow for authenticated
// customers: reserve units, confirm the purchase, release a pending
// reservation, and browse owned tickets.
func RegisterCheckout(e *echo.Echo, ch *handler.CheckoutHandler, t *handler.TicketHandler, jwtSecret string, rateLimit echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("CUSTOMER"))
	if rateLimit != nil {
		g.Use(rateLimit)
	}

	g.POST("/checkout/reserve", ch.Reserve)
	g.POST("/checkout/confirm", ch.Confirm)
	g.POST("/checkout/release", ch.Release)

	g.GET("/my-sales", t.ListSales)
	g.GET("/sales/:id", t.GetSale)
	g.GET("/sales/:id/qr", t.GetSaleQR)
}

// RegisterOrganizer registers venue and event management endpoints for
// authenticated organizers.
func RegisterOrganizer(e *echo.Echo, o *handler.OrganizerHandler, jwtSecret string) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("ORGANIZER"))

	g.POST("/venues", o.CreateVenue)
	g.GET("/venues", o.ListVenues)
	g.GET("/venues/:id", o.GetVenue)

	g.POST("/events", o.CreateEvent)
	g.GET("/my-events", o.ListEvents)
	g.DELETE("/events/:id", o.DeleteEvent)
}
