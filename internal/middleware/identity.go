package middleware

// identity.go defines helper functions shared across middleware files. Currently
// it provides a userID extraction function used by the rate limiter to build
// per-user bucket keys. It first checks the context values set by JWTAuth and
// falls back to the parsed JWT claims. When no user is authenticated, "anon"
// is returned.

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// userID extracts a user identifier from the request context. It returns
// "anon" when no user is authenticated or the claims are missing.
func userID(c echo.Context) string {
	if v := c.Get("user_id"); v != nil {
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case uint64, int64, int, float64:
			return fmt.Sprint(t)
		}
	}
	if u := c.Get("user"); u != nil {
		if tok, ok := u.(*jwt.Token); ok {
			if cl, ok := tok.Claims.(jwt.MapClaims); ok {
				if v, ok := cl["sub"].(string); ok && v != "" {
					return v
				}
			}
		}
	}
	return "anon"
}
