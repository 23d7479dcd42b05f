package utils // package utils provides helpers for ticket token derivation and hashing

import (
	"crypto/hmac"   // keyed token derivation
	"crypto/rand"   // secure random data for display codes
	"crypto/sha256" // SHA-256 hashing for stored token digests
	"encoding/hex"  // hex encoding of tokens and digests
	"fmt"           // formatting the derivation input
)

// TicketToken derives the admission token for ticket index within a
// booking.  The derivation is HMAC-SHA256 over "bookingID:index" keyed
// with the service secret, hex encoded (64 characters).  Tokens are
// unguessable without the key and unique per (booking, index) pair.  The
// raw token is handed to the customer exactly once at issuance; storage
// keeps only its SHA-256 digest, so a leaked database cannot mint
// admission codes.
func TicketToken(secret string, bookingID uint64, index uint32) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d:%d", bookingID, index)
	return hex.EncodeToString(mac.Sum(nil))
}

// HashToken returns the SHA-256 hex digest of a raw admission token.
// This digest is what the tickets table stores and what the scan path
// looks up.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DisplayCode returns a short random hex code used for time-boxed QR
// rendering.  Display codes are stored in redis with their own TTL and
// map back to a ticket; they carry no information about the underlying
// admission token.
func DisplayCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
