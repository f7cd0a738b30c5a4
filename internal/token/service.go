package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"storeapi/internal/domain"
	"storeapi/internal/store"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrExpired       = errors.New("token expired")
	ErrInvalid       = errors.New("token invalid")
	ErrBlacklisted   = errors.New("token blacklisted")
	ErrRefreshReused = errors.New("refresh token already rotated")
)

const (
	audienceAccess  = "storeapi:access"
	audienceRefresh = "storeapi:refresh"
)

type Claims struct {
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Fingerprint string `json:"fingerprint"`
	jwtlib.RegisteredClaims
}

type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SessionRecord is the server-side binding of one device's refresh
// token, stored under session:user:{id}:{fingerprint} with the refresh
// TTL. Its existence is a revocation overlay, not the source of truth:
// signatures stand on their own when the shared store cannot answer.
type SessionRecord struct {
	UserID      int64     `json:"user_id"`
	Fingerprint string    `json:"fingerprint"`
	Browser     string    `json:"browser"`
	OS          string    `json:"os"`
	IP          string    `json:"ip"`
	CreatedAt   time.Time `json:"created_at"`
}

type Service struct {
	store         store.Store
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

func New(st store.Store, accessSecret, refreshSecret, issuer string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		store:         st,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		issuer:        issuer,
	}
}

func sessionKey(userID int64, fingerprint string) string {
	return fmt.Sprintf("session:user:%d:%s", userID, fingerprint)
}

func refreshKey(userID int64, fingerprint string) string {
	return fmt.Sprintf("refresh:token:%d:%s", userID, fingerprint)
}

func blacklistKey(tokenHash string) string {
	return "blacklist:token:" + tokenHash
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IssuePair signs a new access/refresh pair and records the session
// binding. Store failures are absorbed: the tokens are self-verifying,
// the session just will not be revocable across instances.
func (s *Service) IssuePair(ctx context.Context, user *domain.User, device DeviceInfo) (*Pair, error) {
	return s.issuePair(ctx, user.ID, user.Email, string(user.Role), device.Fingerprint(), device)
}

func (s *Service) issuePair(ctx context.Context, userID int64, email, role, fingerprint string, device DeviceInfo) (*Pair, error) {
	now := time.Now()

	access, err := s.sign(s.accessSecret, audienceAccess, userID, email, role, fingerprint, now, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(s.refreshSecret, audienceRefresh, userID, email, role, fingerprint, now, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	record, _ := json.Marshal(SessionRecord{
		UserID:      userID,
		Fingerprint: fingerprint,
		Browser:     device.Browser(),
		OS:          device.OS(),
		IP:          device.IP,
		CreatedAt:   now,
	})
	if err := s.store.Set(ctx, sessionKey(userID, fingerprint), string(record), s.refreshTTL); err != nil {
		log.Printf("level=warn msg=\"session record not stored, revocation is degraded\" user_id=%d error=%q", userID, err)
	}
	if err := s.store.Set(ctx, refreshKey(userID, fingerprint), hashToken(refresh), s.refreshTTL); err != nil {
		log.Printf("level=warn msg=\"refresh reference not stored, rotation reuse detection is degraded\" user_id=%d error=%q", userID, err)
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) sign(secret []byte, audience string, userID int64, email, role, fingerprint string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:      userID,
		Email:       email,
		Role:        role,
		Fingerprint: fingerprint,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwtlib.ClaimStrings{audience},
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
}

func (s *Service) parse(tokenStr string, secret []byte, audience string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (any, error) {
		return secret, nil
	},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(s.issuer),
		jwtlib.WithAudience(audience),
	)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

// VerifyAccess authenticates one request. The blacklist consultation is
// best effort: if the store cannot answer, the signed token is allowed
// through (availability over a perfect global blacklist).
func (s *Service) VerifyAccess(ctx context.Context, tokenStr string) (*Claims, error) {
	blacklisted, err := s.store.Exists(ctx, blacklistKey(hashToken(tokenStr)))
	if err != nil {
		blacklisted = false
	}
	if blacklisted {
		return nil, ErrBlacklisted
	}
	return s.parse(tokenStr, s.accessSecret, audienceAccess)
}

// Rotate exchanges a refresh token for a new pair under the same device
// fingerprint. Refresh tokens are single-use: a stored reference that no
// longer matches means this token was already rotated, and the request
// is rejected. A missing reference (evicted cache, degraded store) falls
// back to trusting the signature alone. Old state is invalidated before
// the new pair is returned; a crash in between forces a re-login, which
// is safe, whereas the reverse order would leave a replayable token.
func (s *Service) Rotate(ctx context.Context, refreshRaw string, device DeviceInfo) (*Pair, error) {
	claims, err := s.parse(refreshRaw, s.refreshSecret, audienceRefresh)
	if err != nil {
		return nil, err
	}
	fingerprint := claims.Fingerprint
	if fingerprint == "" {
		return nil, ErrInvalid
	}

	stored, err := s.store.Get(ctx, refreshKey(claims.UserID, fingerprint))
	if err == nil && stored != hashToken(refreshRaw) {
		return nil, ErrRefreshReused
	}

	if _, err := s.store.Delete(ctx, sessionKey(claims.UserID, fingerprint), refreshKey(claims.UserID, fingerprint)); err != nil {
		log.Printf("level=warn msg=\"rotation could not invalidate prior session\" user_id=%d error=%q", claims.UserID, err)
	}

	return s.issuePair(ctx, claims.UserID, claims.Email, claims.Role, fingerprint, device)
}

// Blacklist revokes an access token for exactly its remaining lifetime,
// so the entry self-expires with the token and never needs a sweep. An
// already expired token is a no-op.
func (s *Service) Blacklist(ctx context.Context, accessToken string) error {
	claims, err := s.parse(accessToken, s.accessSecret, audienceAccess)
	if err == ErrExpired {
		return nil
	}
	if err != nil {
		return err
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}

	if !s.store.Shared() {
		log.Printf("level=warn msg=\"shared store unavailable, token blacklist is per-instance and logout is effectively client-side\" user_id=%d", claims.UserID)
	}
	if err := s.store.Set(ctx, blacklistKey(hashToken(accessToken)), "1", remaining); err != nil {
		log.Printf("level=warn msg=\"blacklist entry not stored\" user_id=%d error=%q", claims.UserID, err)
	}
	return nil
}

func (s *Service) ListSessions(ctx context.Context, userID int64) ([]SessionRecord, error) {
	keys, err := s.store.Keys(ctx, sessionKey(userID, "*"))
	if err != nil {
		return nil, nil
	}
	sessions := make([]SessionRecord, 0, len(keys))
	for _, key := range keys {
		raw, err := s.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var record SessionRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			continue
		}
		sessions = append(sessions, record)
	}
	return sessions, nil
}

// RevokeSession removes one device's session record and refresh
// reference together, so no orphaned half survives.
func (s *Service) RevokeSession(ctx context.Context, userID int64, fingerprint string) bool {
	n, err := s.store.Delete(ctx, sessionKey(userID, fingerprint), refreshKey(userID, fingerprint))
	return err == nil && n > 0
}

func (s *Service) RevokeAllSessions(ctx context.Context, userID int64) int {
	sessions, _ := s.ListSessions(ctx, userID)
	count := 0
	for _, record := range sessions {
		if s.RevokeSession(ctx, userID, record.Fingerprint) {
			count++
		}
	}
	return count
}

// PeekRefresh parses refresh claims without consulting the store. Used
// by logout to learn which fingerprint to revoke; an expired token still
// names its session.
func (s *Service) PeekRefresh(refreshRaw string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(refreshRaw, &Claims{}, func(t *jwtlib.Token) (any, error) {
		return s.refreshSecret, nil
	},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(s.issuer),
		jwtlib.WithAudience(audienceRefresh),
	)
	// the signature is checked before claims validation, so an expired
	// token still yields trustworthy claims
	if err != nil && !errors.Is(err, jwtlib.ErrTokenExpired) {
		return nil, ErrInvalid
	}
	if parsed == nil {
		return nil, ErrInvalid
	}
	if claims, ok := parsed.Claims.(*Claims); ok {
		return claims, nil
	}
	return nil, ErrInvalid
}
