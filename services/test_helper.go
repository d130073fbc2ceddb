package services

import (
	"testing"

	"waitlist-referral-system/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an isolated in-memory SQLite database per test. A real
// SQL engine (not a mock) so the unique indexes and transactions behave like
// production. TranslateError mirrors main.go: uniqueness violations must come
// back as gorm.ErrDuplicatedKey.
//
// MaxOpenConns(1) makes the single connection the serialization point, the
// same role the hosted store plays in production — concurrent-writer tests
// contend on it instead of tripping over SQLite file locking.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(&models.ReferralAccount{}, &models.ReferralEvent{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to access underlying DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func newTestServices(t *testing.T) (*CodeRegistry, *ReferralService, *LeaderboardService) {
	t.Helper()
	db := setupTestDB(t)
	registry := NewCodeRegistry(db)
	return registry, NewReferralService(db, registry), NewLeaderboardService(db)
}
