// workers/signup_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"waitlist-referral-system/services"
	"waitlist-referral-system/utils"
)

// SignupFromWaitlist matches the JSON the waitlist service returns for each
// signup change. ReferralCode is whatever the signup form captured from the
// ?ref= query parameter — possibly empty, possibly bogus.
type SignupFromWaitlist struct {
	Email        string    `json:"email"`
	ReferralCode string    `json:"referral_code"`
	Confirmed    bool      `json:"confirmed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GetSignupChangesResponse is the top-level structure of the waitlist service response.
type GetSignupChangesResponse struct {
	Signups []SignupFromWaitlist `json:"signups"`
}

// SignupSyncWorker polls the waitlist service for new signups and runs each
// through attribution. Because the credit ledger is idempotent (replays come
// back as already_credited), the worker may safely re-fetch any window —
// the in-memory cursor is an optimization, not a correctness requirement.
type SignupSyncWorker struct {
	referralService *services.ReferralService
	interval        time.Duration
	baseURL         string // e.g., "http://localhost:8400"
	endpointPath    string // e.g., "/api/v1/public/signups"
	serviceToken    string
	httpClient      *http.Client
	lastSync        time.Time
}

func NewSignupSyncWorker(referralService *services.ReferralService, waitlistBaseURL, endpointPath, serviceToken string) *SignupSyncWorker {
	return &SignupSyncWorker{
		referralService: referralService,
		interval:        1 * time.Minute,
		baseURL:         waitlistBaseURL,
		endpointPath:    endpointPath,
		serviceToken:    serviceToken,
		httpClient:      utils.HTTPClient,
	}
}

func (w *SignupSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Signup Sync Worker (waitlist-service → referral ledger)…")
	go w.run(ctx)
}

func (w *SignupSyncWorker) run(ctx context.Context) {
	// Initial sync backfills from the beginning of time; duplicates are
	// harmless thanks to ledger idempotency.
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial signup sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.lastSync); err != nil {
				log.Printf("❌ Signup sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Signup Sync Worker stopped")
			return
		}
	}
}

// syncBatch fetches signup changes since the cursor and attributes each one.
func (w *SignupSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid waitlist service URL '%s': %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to waitlist service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("waitlist service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response GetSignupChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode waitlist service response: %w", err)
	}

	if len(response.Signups) == 0 {
		return nil
	}

	log.Printf("[SIGNUP_SYNC] 📥 Processing %d signup(s) since %s…", len(response.Signups), sinceStr)

	var credited, skipped, errored int
	for _, signup := range response.Signups {
		if signup.UpdatedAt.After(w.lastSync) {
			w.lastSync = signup.UpdatedAt
		}

		outcome, err := w.referralService.AttributeSignup(signup.Email, signup.ReferralCode)
		if err != nil {
			errored++
			log.Printf("[SIGNUP_SYNC] ⚠️ Attribution degraded for %s: %v", signup.Email, err)
			continue
		}
		if outcome == services.OutcomeCredited {
			credited++
		} else {
			skipped++
		}
	}

	log.Printf("[SIGNUP_SYNC] ✅ Batch done: %d credited, %d without attribution, %d errors",
		credited, skipped, errored)
	return nil
}
