package models

import (
	"time"

	"gorm.io/gorm"
)

// ReferralAccount is the per-referrer aggregate row for the waitlist referral
// program. One row per referring identity, created lazily the first time the
// identity needs a code and never deleted.
//
// TotalCredits must always equal TotalReferrals * CREDIT_PER_REFERRAL; both
// columns are only ever touched by the credit ledger's atomic increments.
type ReferralAccount struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"` // assigned in Go, no DB default
	Code          string `gorm:"uniqueIndex;not null" json:"code"`           // immutable once issued
	OwnerIdentity string `gorm:"uniqueIndex;not null" json:"owner_identity"` // referrer's email

	TotalReferrals int64 `json:"total_referrals" gorm:"default:0"`
	TotalCredits   int64 `json:"total_credits" gorm:"default:0"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
