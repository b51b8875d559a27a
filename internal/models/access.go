package models

import (
	"strings"
	"time"
)

// Tier is the access level derived from payment
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

// Pricing in EUR cents. VIP is a one-time lifetime purchase, the other
// two are monthly subscriptions.
const (
	AmountBasic   = 500
	AmountPremium = 1000
	AmountVIP     = 2500
)

// AccessRecord is the entitlement stored per email and per checkout session.
// ExpiresAt is unix seconds; nil means no expiry is tracked (VIP), zero
// means revoked.
type AccessRecord struct {
	Tier      Tier   `json:"tier"`
	ExpiresAt *int64 `json:"expiresAt"`
	Email     string `json:"email,omitempty"`
}

// ActiveAt reports whether the record grants access at the given time.
// VIP never expires; everything else needs a future expiry.
func (r *AccessRecord) ActiveAt(now time.Time) bool {
	if r == nil || r.Tier == "" {
		return false
	}
	if r.Tier == TierVIP {
		return true
	}
	if r.ExpiresAt == nil {
		return false
	}
	return *r.ExpiresAt > now.Unix()
}

// TierFromAmount maps a paid amount to a tier. Only EUR amounts are
// recognized; anything unknown falls back to basic (least privilege).
func TierFromAmount(amountTotal int64, currency string) Tier {
	cur := strings.ToLower(strings.TrimSpace(currency))
	if cur != "" && cur != "eur" {
		return TierBasic
	}
	switch amountTotal {
	case AmountBasic:
		return TierBasic
	case AmountPremium:
		return TierPremium
	case AmountVIP:
		return TierVIP
	}
	return TierBasic
}

// NormalizeEmail canonicalizes an email for use as a store key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExpiryAt is a convenience for building a non-nil expiry
func ExpiryAt(unixSeconds int64) *int64 {
	return &unixSeconds
}
