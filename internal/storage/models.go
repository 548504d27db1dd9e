package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimResult reports the outcome of a deal claim attempt.
type ClaimResult int

const (
	// Claimed means this call inserted the fingerprint.
	Claimed ClaimResult = iota
	// AlreadyClaimed means the fingerprint was inserted by an earlier call.
	AlreadyClaimed
)

// DealClaim is a persisted dedup-registry entry: the claimed fingerprint
// plus a snapshot of the deal at notification time, kept for audit.
type DealClaim struct {
	Fingerprint   string
	Origin        string
	Destination   string
	OutboundDate  time.Time
	ReturnDate    time.Time
	ObservedPrice decimal.Decimal
	BaselinePrice decimal.Decimal
	DiscountRatio decimal.Decimal
	Currency      string
	Carrier       string
	ClaimedAt     time.Time
}
