package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"waitlist-referral-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditPerReferral is the fixed reward per successful attribution. Every
// account must satisfy total_credits == total_referrals * CreditPerReferral.
const CreditPerReferral = 10

// recordRetries bounds the retry loop around the ledger transaction on
// transient store contention. After exhaustion the failure is downgraded to
// no-attribution — referral bookkeeping never blocks a signup.
const recordRetries = 3

// AttributionOutcome is what the signup flow gets back. Only "credited" means
// a reward was granted; none of the other outcomes are signup failures.
type AttributionOutcome string

const (
	OutcomeCredited             AttributionOutcome = "credited"
	OutcomeAlreadyCredited      AttributionOutcome = "already_credited"
	OutcomeUnknownCode          AttributionOutcome = "unknown_code"
	OutcomeSelfReferralRejected AttributionOutcome = "self_referral_rejected"
	OutcomeNoAttribution        AttributionOutcome = "no_attribution"
)

var (
	// ErrAttributionFailed means the ledger transaction kept failing on
	// transient errors. Callers log it and treat the signup as unattributed.
	ErrAttributionFailed = errors.New("referral attribution failed after retries")

	// ErrEventNotFound is returned by ReverseReferral when no credited event
	// exists for the given pair.
	ErrEventNotFound = errors.New("referral event not found")

	// errUnknownCode is internal: the ledger update matched no account row.
	errUnknownCode = errors.New("referral code has no account")
)

// ReferralService is the attribution recorder and the credit ledger. It is
// the only component that mutates ReferralAccount totals or inserts
// ReferralEvents, and every mutation runs as a single transaction.
type ReferralService struct {
	DB       *gorm.DB
	Registry *CodeRegistry
}

func NewReferralService(db *gorm.DB, registry *CodeRegistry) *ReferralService {
	return &ReferralService{DB: db, Registry: registry}
}

// AttributeSignup decides whether a single signup earns its referrer a
// credit. The returned error is non-nil only for store failures that survived
// the retry loop; even then the outcome is usable (no_attribution) and the
// signup must proceed.
func (s *ReferralService) AttributeSignup(referredIdentity, referralCode string) (AttributionOutcome, error) {
	referralCode = strings.TrimSpace(referralCode)
	if referralCode == "" {
		return OutcomeNoAttribution, nil
	}

	account, err := s.Registry.ResolveCode(referralCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Best-effort: a bad code is logged, not surfaced to the user.
			log.Printf("🔎 [ATTRIBUTION] Unknown code %q on signup of %s", referralCode, referredIdentity)
			return OutcomeUnknownCode, nil
		}
		return OutcomeNoAttribution, fmt.Errorf("%w: resolve code: %v", ErrAttributionFailed, err)
	}

	if strings.EqualFold(account.OwnerIdentity, referredIdentity) {
		log.Printf("🚫 [ATTRIBUTION] Self-referral rejected for %s (code %s)", referredIdentity, referralCode)
		return OutcomeSelfReferralRejected, nil
	}

	return s.RecordReferral(referralCode, referredIdentity)
}

// RecordReferral atomically appends one ReferralEvent and bumps the owning
// account's aggregates. The event's unique index on referred_identity is the
// at-most-once gate; the increments use native SQL expressions so concurrent
// signups on the same code cannot lose updates to read-modify-write races.
func (s *ReferralService) RecordReferral(code, referredIdentity string) (AttributionOutcome, error) {
	var lastErr error
	for attempt := 0; attempt < recordRetries; attempt++ {
		err := s.recordOnce(code, referredIdentity)
		if err == nil {
			log.Printf("💰 [LEDGER] Credited %d to code %s for signup %s", CreditPerReferral, code, referredIdentity)
			return OutcomeCredited, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return OutcomeAlreadyCredited, nil
		}
		if errors.Is(err, errUnknownCode) {
			return OutcomeUnknownCode, nil
		}
		lastErr = err
		log.Printf("⚠️ [LEDGER] recordReferral attempt %d/%d failed for code %s: %v", attempt+1, recordRetries, code, err)
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return OutcomeNoAttribution, fmt.Errorf("%w: %v", ErrAttributionFailed, lastErr)
}

func (s *ReferralService) recordOnce(code, referredIdentity string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		event := models.ReferralEvent{
			ID:               uuid.NewString(),
			ReferralCode:     code,
			ReferredIdentity: referredIdentity,
			CreditedAmount:   CreditPerReferral,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		res := tx.Model(&models.ReferralAccount{}).
			Where("code = ?", code).
			UpdateColumns(map[string]interface{}{
				"total_referrals": gorm.Expr("total_referrals + ?", 1),
				"total_credits":   gorm.Expr("total_credits + ?", CreditPerReferral),
				"updated_at":      time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// No account row — rolls back the event insert too.
			return errUnknownCode
		}
		return nil
	})
}

// ReverseReferral undoes one credited event: the event row is deleted and the
// account decremented in the same transaction. Admin-driven remediation only.
func (s *ReferralService) ReverseReferral(code, referredIdentity string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("referral_code = ? AND referred_identity = ?", code, referredIdentity).
			Delete(&models.ReferralEvent{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrEventNotFound
		}

		upd := tx.Model(&models.ReferralAccount{}).
			Where("code = ? AND total_referrals >= 1", code).
			UpdateColumns(map[string]interface{}{
				"total_referrals": gorm.Expr("total_referrals - ?", 1),
				"total_credits":   gorm.Expr("total_credits - ?", CreditPerReferral),
				"updated_at":      time.Now(),
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return fmt.Errorf("account for code %s missing or already at zero referrals", code)
		}

		log.Printf("↩️ [LEDGER] Reversed referral of %s on code %s", referredIdentity, code)
		return nil
	})
}

// ReferralStats is the referrer-facing dashboard payload.
type ReferralStats struct {
	Code           string                 `json:"code"`
	TotalReferrals int64                  `json:"total_referrals"`
	TotalCredits   int64                  `json:"total_credits"`
	RecentEvents   []models.ReferralEvent `json:"recent_events"`
}

// GetReferralStats returns the identity's own totals plus its most recent
// credited events. Read-only; slightly stale aggregates are acceptable here.
func (s *ReferralService) GetReferralStats(identity string) (*ReferralStats, error) {
	var account models.ReferralAccount
	if err := s.DB.Where("owner_identity = ?", identity).First(&account).Error; err != nil {
		return nil, err
	}

	var events []models.ReferralEvent
	if err := s.DB.Where("referral_code = ?", account.Code).
		Order("created_at DESC").
		Limit(10).
		Find(&events).Error; err != nil {
		return nil, err
	}

	return &ReferralStats{
		Code:           account.Code,
		TotalReferrals: account.TotalReferrals,
		TotalCredits:   account.TotalCredits,
		RecentEvents:   events,
	}, nil
}
