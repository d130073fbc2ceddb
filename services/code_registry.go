package services

import (
	"crypto/rand"
	"errors"
	"log"
	"os"

	"waitlist-referral-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeSuffixLength = 6
	defaultPrefix    = "DELYFT"

	// maxCodeAttempts bounds the regenerate-on-collision loop. With a 36^6
	// suffix space a single collision is already rare; five in a row means
	// the code space is effectively saturated.
	maxCodeAttempts = 5
)

// ErrCodeGenerationExhausted is returned when every generated candidate
// collided with an existing code. Callers must surface a retry-later error
// rather than reuse a colliding code.
var ErrCodeGenerationExhausted = errors.New("referral code generation exhausted after retries")

// CodeRegistry is the authoritative issuer of referral codes. Codes are
// server-issued and unique for the lifetime of the system; anything a client
// holds is a cache of a value issued here.
type CodeRegistry struct {
	DB     *gorm.DB
	prefix string
}

func NewCodeRegistry(db *gorm.DB) *CodeRegistry {
	prefix := os.Getenv("REFERRAL_CODE_PREFIX")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &CodeRegistry{DB: db, prefix: prefix}
}

// IssueCode returns the identity's referral account, creating it with a fresh
// code on first use. Idempotent: repeated calls for the same identity return
// the same code. Safe under concurrent callers for the same identity — the
// loser of an insert race re-reads and returns the winner's row.
func (r *CodeRegistry) IssueCode(identity string) (*models.ReferralAccount, error) {
	var existing models.ReferralAccount
	err := r.DB.Where("owner_identity = ?", identity).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		account := models.ReferralAccount{
			ID:            uuid.NewString(),
			Code:          r.prefix + randomSuffix(),
			OwnerIdentity: identity,
		}

		createErr := r.DB.Create(&account).Error
		if createErr == nil {
			log.Printf("🎟️ [CODE_REGISTRY] Issued code %s for %s", account.Code, identity)
			return &account, nil
		}
		if !errors.Is(createErr, gorm.ErrDuplicatedKey) {
			return nil, createErr
		}

		// The duplicate may be our own identity (a concurrent IssueCode won
		// the insert) or a code collision. Re-read to tell the two apart.
		if err := r.DB.Where("owner_identity = ?", identity).First(&existing).Error; err == nil {
			return &existing, nil
		}
		log.Printf("⚠️ [CODE_REGISTRY] Code collision on attempt %d for %s, regenerating", attempt+1, identity)
	}

	return nil, ErrCodeGenerationExhausted
}

// ResolveCode looks up the account owning a code. Read-only; returns
// gorm.ErrRecordNotFound for codes that were never issued.
func (r *CodeRegistry) ResolveCode(code string) (*models.ReferralAccount, error) {
	var account models.ReferralAccount
	if err := r.DB.Where("code = ?", code).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func randomSuffix() string {
	buf := make([]byte, codeSuffixLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken; nothing
		// sensible to fall back to.
		panic(err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
