// Package cache wraps the redis side channels around the core engine:
// the best-effort "user bookings" view cache and the short-lived QR
// display codes.  Nothing here participates in transaction outcomes; a
// dead redis degrades to slower reads and disabled QR sharing, never to
// a failed booking.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultBookingsTTL bounds staleness of the cached bookings view when an
// invalidation is lost (e.g. redis briefly unreachable post-commit).
const DefaultBookingsTTL = 5 * time.Minute

// QRCodeTTL is how long a QR display code stays resolvable.  It is
// deliberately independent of the underlying ticket's validity window.
const QRCodeTTL = 5 * time.Minute

// Store bundles the redis client with a logger for suppressed failures.
// A nil client disables every operation, matching how the rest of the
// system degrades when redis is not configured.
type Store struct {
	rdb *redis.Client
	log *logrus.Logger
}

// New returns a Store.  rdb may be nil.
func New(rdb *redis.Client, log *logrus.Logger) *Store {
	return &Store{rdb: rdb, log: log}
}

func bookingsKey(userID uint64) string { return fmt.Sprintf("user_bookings:%d", userID) }

// GetUserBookings returns the cached JSON bookings view for a user, or
// ("", false) on miss, disabled cache, or error.
func (s *Store) GetUserBookings(ctx context.Context, userID uint64) (string, bool) {
	if s.rdb == nil {
		return "", false
	}
	v, err := s.rdb.Get(ctx, bookingsKey(userID)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

// SetUserBookings stores the serialized bookings view.  Failures are
// logged and swallowed.
func (s *Store) SetUserBookings(ctx context.Context, userID uint64, payload string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, bookingsKey(userID), payload, DefaultBookingsTTL).Err(); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("cache: set bookings failed")
	}
}

// InvalidateUserBookings drops the cached view after a booking mutation
// commits.  It is best-effort by contract: a failure here must never be
// reported to the caller as a failed booking.
func (s *Store) InvalidateUserBookings(ctx context.Context, userID uint64) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, bookingsKey(userID)).Err(); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("cache: invalidate bookings failed")
	}
}

func qrKey(code string) string { return "qr:" + code }

// StoreDisplayCode maps a random display code to a ticket id for QRCodeTTL.
func (s *Store) StoreDisplayCode(ctx context.Context, code string, ticketID uint64) error {
	if s.rdb == nil {
		return fmt.Errorf("qr codes unavailable: redis not configured")
	}
	return s.rdb.Set(ctx, qrKey(code), ticketID, QRCodeTTL).Err()
}

// ResolveDisplayCode returns the ticket id behind a display code, or
// (0, false) when the code is unknown or expired.
func (s *Store) ResolveDisplayCode(ctx context.Context, code string) (uint64, bool) {
	if s.rdb == nil {
		return 0, false
	}
	id, err := s.rdb.Get(ctx, qrKey(code)).Uint64()
	if err != nil {
		return 0, false
	}
	return id, true
}
