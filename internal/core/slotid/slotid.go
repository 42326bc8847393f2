// Package slotid derives stable slot fingerprints.
//
// A slot is one reservable time at one venue. The fingerprint is the identity
// used for baseline/prev/curr set diffing, so it must be deterministic across
// restarts and independent of payload content. Party size is part of the
// query, not the identity, and is never hashed in.
package slotid

import (
	"crypto/sha256"
	"encoding/hex"
)

// HexLen is the length of a slot fingerprint in hex characters
const HexLen = 32

// Make returns the fingerprint for (provider, venueID, actualTime).
// actualTime is the reservation start with minute precision as reported by
// the provider, e.g. "2026-02-18 20:30:00"
func Make(provider, venueID, actualTime string) string {
	sum := sha256.Sum256([]byte(provider + "|" + venueID + "|" + actualTime))
	return hex.EncodeToString(sum[:])[:HexLen]
}
