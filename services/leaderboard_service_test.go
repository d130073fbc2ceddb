package services

import (
	"fmt"
	"testing"
	"time"

	"waitlist-referral-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedAccount inserts an account with explicit totals and creation time,
// bypassing the ledger — leaderboard tests only care about the read side.
func seedAccount(t *testing.T, db *gorm.DB, code, identity string, referrals int64, createdAt time.Time) {
	t.Helper()
	account := models.ReferralAccount{
		Code:           code,
		OwnerIdentity:  identity,
		TotalReferrals: referrals,
		TotalCredits:   referrals * CreditPerReferral,
	}
	account.ID = code // unique and stable, good enough for tests
	account.CreatedAt = createdAt
	account.UpdatedAt = createdAt
	require.NoError(t, db.Create(&account).Error)
}

func seedRankedAccounts(t *testing.T, db *gorm.DB) {
	t.Helper()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Two accounts tied at 23; the earlier one (TIEOLD) must rank higher.
	seedAccount(t, db, "DELYFTTOP111", "top@example.com", 42, base.Add(3*time.Hour))
	seedAccount(t, db, "DELYFTTIEOLD", "older@example.com", 23, base.Add(1*time.Hour))
	seedAccount(t, db, "DELYFTTIENEW", "newer@example.com", 23, base.Add(2*time.Hour))
	seedAccount(t, db, "DELYFTLAST44", "last@example.com", 8, base)
	seedAccount(t, db, "DELYFTZERO00", "lurker@example.com", 0, base)
}

func codesOf(entries []LeaderboardEntry) []string {
	codes := make([]string, len(entries))
	for i, e := range entries {
		codes[i] = e.Code
	}
	return codes
}

func TestGetLeaderboard_OrderingAndTieBreak(t *testing.T) {
	db := setupTestDB(t)
	seedRankedAccounts(t, db)
	svc := NewLeaderboardService(db)

	entries, total, err := svc.GetLeaderboard(0, 10, "")
	require.NoError(t, err)

	assert.EqualValues(t, 4, total, "zero-referral accounts are excluded")
	assert.Equal(t,
		[]string{"DELYFTTOP111", "DELYFTTIEOLD", "DELYFTTIENEW", "DELYFTLAST44"},
		codesOf(entries))
	assert.EqualValues(t, 42*CreditPerReferral, entries[0].TotalCredits)
}

func TestGetLeaderboard_PaginationIsStable(t *testing.T) {
	db := setupTestDB(t)
	seedRankedAccounts(t, db)
	svc := NewLeaderboardService(db)

	firstPage, _, err := svc.GetLeaderboard(0, 2, "")
	require.NoError(t, err)
	secondPage, _, err := svc.GetLeaderboard(2, 2, "")
	require.NoError(t, err)

	all := append(codesOf(firstPage), codesOf(secondPage)...)
	assert.Equal(t,
		[]string{"DELYFTTOP111", "DELYFTTIEOLD", "DELYFTTIENEW", "DELYFTLAST44"},
		all, "consecutive pages must neither skip nor duplicate entries")
}

func TestGetLeaderboard_SearchFiltersCodeAndIdentity(t *testing.T) {
	db := setupTestDB(t)
	seedRankedAccounts(t, db)
	svc := NewLeaderboardService(db)

	// Case-insensitive match on the code…
	entries, total, err := svc.GetLeaderboard(0, 10, "tieold")
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "DELYFTTIEOLD", entries[0].Code)

	// …and on the owner identity.
	entries, _, err = svc.GetLeaderboard(0, 10, "NEWER@")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "DELYFTTIENEW", entries[0].Code)

	_, total, err = svc.GetLeaderboard(0, 10, "nomatch")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestGetLeaderboard_SearchTreatsWildcardsLiterally(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedAccount(t, db, "DELYFTWILD01", "jo_anne@example.com", 3, base)
	seedAccount(t, db, "DELYFTWILD02", "joxanne@example.com", 2, base.Add(time.Minute))
	svc := NewLeaderboardService(db)

	// "_" matches only a literal underscore, not any single character.
	entries, total, err := svc.GetLeaderboard(0, 10, "jo_anne")
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "DELYFTWILD01", entries[0].Code)

	// A lone "%" matches nothing rather than everything.
	_, total, err = svc.GetLeaderboard(0, 10, "%")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestGetLeaderboard_MasksIdentities(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedAccount(t, db, "DELYFTMASK01", "jordan@example.com", 3, base)
	seedAccount(t, db, "DELYFTMASK02", "x@example.com", 2, base.Add(time.Minute))
	svc := NewLeaderboardService(db)

	entries, _, err := svc.GetLeaderboard(0, 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "jo***@example.com", entries[0].MaskedIdentity)
	assert.Equal(t, "Anonymous", entries[1].MaskedIdentity, "one-char local part can't be masked")
}

func TestGetLeaderboard_ClampsPageSize(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		seedAccount(t, db,
			fmt.Sprintf("DELYFTBULK%03d", i),
			fmt.Sprintf("bulk%03d@example.com", i),
			int64(i+1),
			base.Add(time.Duration(i)*time.Second))
	}
	svc := NewLeaderboardService(db)

	entries, total, err := svc.GetLeaderboard(0, 10_000, "")
	require.NoError(t, err)
	assert.EqualValues(t, 120, total)
	assert.Len(t, entries, 100)
}

func TestMaskIdentity(t *testing.T) {
	cases := map[string]string{
		"jordan@example.com": "jo***@example.com",
		"jo@example.com":     "jo***@example.com",
		"x@example.com":      "Anonymous",
		"":                   "Anonymous",
		"handle-only":        "ha***",
		"a":                  "Anonymous",
	}
	for in, want := range cases {
		assert.Equal(t, want, maskIdentity(in), "maskIdentity(%q)", in)
	}
}
