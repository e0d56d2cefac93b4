package database

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 24-character hex id (12 random bytes), the opaque id
// format shared by events, bets, users and ledger rows.
func NewID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
