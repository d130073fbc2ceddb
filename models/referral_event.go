package models

import "time"

// ReferralEvent is the append-only audit record: one row per successful
// attribution. Rows are never mutated; the only removal path is an explicit
// admin reversal, which deletes the row and decrements the account in the
// same transaction.
//
// The unique index on ReferredIdentity is the at-most-once gate: a referred
// identity can contribute to exactly one account's totals, ever, which also
// covers the weaker per-(code, identity) guarantee.
type ReferralEvent struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"` // assigned in Go, no DB default
	ReferralCode     string    `gorm:"index;not null" json:"referral_code"`
	ReferredIdentity string    `gorm:"uniqueIndex;not null" json:"referred_identity"`
	CreditedAmount   int64     `gorm:"not null" json:"credited_amount"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
}
