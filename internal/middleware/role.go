package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Roles recognised in the JWT "role" claim.  CUSTOMER books and pays;
// STAFF scans tickets at the door; ADMIN may additionally issue refunds.
const (
	RoleCustomer = "CUSTOMER"
	RoleStaff    = "STAFF"
	RoleAdmin    = "ADMIN"
)

// RequireRole returns a middleware enforcing that the authenticated
// caller holds one of the given roles.  It assumes JWTAuth already
// stored the role in the context; a missing or unknown role yields 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
