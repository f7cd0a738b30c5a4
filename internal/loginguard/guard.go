package loginguard

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"storeapi/internal/store"
)

// attemptRecord tracks consecutive failures for one login identifier.
// It lives at loginattempt:{email} and goes through three states:
// clean (no record), warned (attempts below the threshold) and blocked
// (blockedUntil in the future).
type attemptRecord struct {
	Attempts     int        `json:"attempts"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	IP           string     `json:"ip,omitempty"`
}

type Guard struct {
	store         store.Store
	maxAttempts   int
	blockDuration time.Duration
}

func New(st store.Store, maxAttempts int, blockDuration time.Duration) *Guard {
	return &Guard{store: st, maxAttempts: maxAttempts, blockDuration: blockDuration}
}

func (g *Guard) BlockDuration() time.Duration { return g.blockDuration }

func attemptKey(email string) string {
	return "loginattempt:" + strings.ToLower(strings.TrimSpace(email))
}

// IsBlocked must run before the credential check so that a blocked
// identifier takes the same path whether or not the account exists.
// A block that has lapsed is lazily cleared. When the store cannot
// answer, the caller is NOT blocked: failing closed here would turn a
// store outage into a login denial-of-service.
func (g *Guard) IsBlocked(ctx context.Context, email string) (bool, time.Duration) {
	raw, err := g.store.Get(ctx, attemptKey(email))
	if err != nil {
		return false, 0
	}
	var record attemptRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return false, 0
	}
	if record.BlockedUntil == nil {
		return false, 0
	}
	remaining := time.Until(*record.BlockedUntil)
	if remaining <= 0 {
		g.store.Delete(ctx, attemptKey(email))
		return false, 0
	}
	return true, remaining
}

// RecordFailure advances the state machine on a failed credential
// check and reports whether this failure tripped the block.
func (g *Guard) RecordFailure(ctx context.Context, email, ip string) bool {
	record := attemptRecord{IP: ip}
	if raw, err := g.store.Get(ctx, attemptKey(email)); err == nil {
		_ = json.Unmarshal([]byte(raw), &record)
	}
	record.Attempts++
	record.IP = ip

	blocked := false
	ttl := g.blockDuration
	if record.Attempts >= g.maxAttempts {
		until := time.Now().Add(g.blockDuration)
		record.BlockedUntil = &until
		blocked = true
	} else {
		// counting window: the streak resets if no failure follows
		ttl = g.blockDuration * 2
	}

	payload, _ := json.Marshal(record)
	if err := g.store.Set(ctx, attemptKey(email), string(payload), ttl); err != nil {
		return false
	}
	return blocked
}

// Reset drops the record entirely on a successful login, regardless of
// how many failures preceded it.
func (g *Guard) Reset(ctx context.Context, email string) {
	g.store.Delete(ctx, attemptKey(email))
}
