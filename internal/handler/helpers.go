package handler // handler defines the HTTP handlers for the reservation and settlement engine

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

// cancelCutoffHours is the policy window before the booking start inside
// which cancellation is refused.  It is a service policy constant, not
// caller configurable.
const cancelCutoffHours = 24

// getUserID extracts the authenticated user id from the echo context.
// The JWT middleware stores the raw "sub" claim, which may arrive as a
// JSON number or a string depending on the issuer.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}
