// services/scheduler.go
package services

import (
	"log"
	"time"

	"waitlist-referral-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartLedgerAuditScheduler runs a periodic consistency audit over the credit
// ledger. It never mutates anything: discrepancies are logged for operators.
//
// Two checks per run:
//   - the credit identity: total_credits == total_referrals * CreditPerReferral
//   - aggregates vs. the audit trail: total_referrals matches the number of
//     ReferralEvents recorded for the code
func (s *ReferralService) StartLedgerAuditScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(s.auditLedger),
	)
}

func (s *ReferralService) auditLedger() {
	var broken []models.ReferralAccount
	if err := s.DB.Where("total_credits <> total_referrals * ?", CreditPerReferral).
		Find(&broken).Error; err != nil {
		log.Printf("[Audit] DB error checking credit identity: %v", err)
		return
	}
	for _, a := range broken {
		log.Printf("🚨 [Audit] Credit identity violated for code %s: referrals=%d credits=%d",
			a.Code, a.TotalReferrals, a.TotalCredits)
	}

	type mismatch struct {
		Code           string
		TotalReferrals int64
		EventCount     int64
	}
	var mismatches []mismatch
	err := s.DB.Raw(`
		SELECT ra.code, ra.total_referrals, COUNT(re.id) AS event_count
		FROM referral_accounts ra
		LEFT JOIN referral_events re ON re.referral_code = ra.code
		WHERE ra.deleted_at IS NULL
		GROUP BY ra.code, ra.total_referrals
		HAVING ra.total_referrals <> COUNT(re.id)
	`).Scan(&mismatches).Error
	if err != nil {
		log.Printf("[Audit] DB error reconciling event counts: %v", err)
		return
	}
	for _, m := range mismatches {
		log.Printf("🚨 [Audit] Aggregate drift for code %s: total_referrals=%d but %d events on record",
			m.Code, m.TotalReferrals, m.EventCount)
	}

	if len(broken) == 0 && len(mismatches) == 0 {
		log.Println("✅ [Audit] Ledger consistent")
	}
}
