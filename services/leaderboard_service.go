package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"waitlist-referral-system/models"
	"waitlist-referral-system/utils"

	"gorm.io/gorm"
)

// LeaderboardEntry is one ranked row for display. Identities are masked
// before they leave this package.
type LeaderboardEntry struct {
	Code           string `json:"code"`
	MaskedIdentity string `json:"masked_identity"`
	TotalReferrals int64  `json:"total_referrals"`
	TotalCredits   int64  `json:"total_credits"`
}

type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

// GetLeaderboard returns one page of the ranked view plus the total number of
// matching accounts. Accounts with zero referrals are excluded. The order —
// total_referrals DESC, created_at ASC (earlier referrers win ties), code ASC
// as a final strict key — is a total order, so consecutive pages never skip
// or duplicate an entry.
func (s *LeaderboardService) GetLeaderboard(offset, limit int, searchTerm string) ([]LeaderboardEntry, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 25
	}
	if limit > 100 {
		limit = 100
	}

	query := s.DB.Model(&models.ReferralAccount{}).Where("total_referrals > 0")

	if term := strings.TrimSpace(searchTerm); term != "" {
		pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
		query = query.Where("LOWER(code) LIKE ? ESCAPE '\\' OR LOWER(owner_identity) LIKE ? ESCAPE '\\'", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var accounts []models.ReferralAccount
	if err := query.
		Order("total_referrals DESC, created_at ASC, code ASC").
		Limit(limit).
		Offset(offset).
		Find(&accounts).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]LeaderboardEntry, len(accounts))
	for i, a := range accounts {
		entries[i] = LeaderboardEntry{
			Code:           a.Code,
			MaskedIdentity: maskIdentity(a.OwnerIdentity),
			TotalReferrals: a.TotalReferrals,
			TotalCredits:   a.TotalCredits,
		}
	}
	return entries, total, nil
}

// ExportCSV uploads a full ranked snapshot to R2 and returns its CDN URL.
// Identities stay masked in the export as well.
func (s *LeaderboardService) ExportCSV(ctx context.Context) (string, error) {
	var accounts []models.ReferralAccount
	if err := s.DB.Where("total_referrals > 0").
		Order("total_referrals DESC, created_at ASC, code ASC").
		Find(&accounts).Error; err != nil {
		return "", err
	}

	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"rank", "code", "identity", "total_referrals", "total_credits"})
	for i, a := range accounts {
		_ = w.Write([]string{
			strconv.Itoa(i + 1),
			a.Code,
			maskIdentity(a.OwnerIdentity),
			strconv.FormatInt(a.TotalReferrals, 10),
			strconv.FormatInt(a.TotalCredits, 10),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	key := fmt.Sprintf("exports/leaderboard-%s.csv", time.Now().UTC().Format("20060102-150405"))
	return utils.UploadBytesToR2(ctx, key, "text/csv", buf.Bytes())
}

// escapeLike neutralizes SQL LIKE wildcards in a user-supplied search term
// so "%" and "_" match themselves, not arbitrary characters.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

// maskIdentity keeps the first two characters of the email local part and
// hides the rest, e.g. "jo***@example.com". Placeholder identities that
// cannot be masked meaningfully render as "Anonymous".
func maskIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "Anonymous"
	}

	local, domain, isEmail := strings.Cut(identity, "@")
	if !isEmail {
		if len(identity) < 2 {
			return "Anonymous"
		}
		return identity[:2] + "***"
	}
	if len(local) < 2 {
		return "Anonymous"
	}
	return local[:2] + "***@" + domain
}
