package auth

import (
	"context"
	"errors"
	"strings"

	"storeapi/internal/domain"
	"storeapi/internal/loginguard"
	"storeapi/internal/token"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// dummyHash is compared against when the account does not exist, so the
// unknown-email and wrong-password paths cost the same.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service contains the login, rotation and session-revocation logic.
type Service struct {
	users  UserRepositoryInterface
	guard  *loginguard.Guard
	tokens *token.Service
}

type LoginResult struct {
	User *domain.User
	Pair *token.Pair
}

func NewService(users UserRepositoryInterface, guard *loginguard.Guard, tokens *token.Service) *Service {
	return &Service{users: users, guard: guard, tokens: tokens}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest, device token.DeviceInfo) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         domain.RoleUser,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(ctx, user, device)
	if err != nil {
		return nil, err
	}

	safe := *user
	safe.PasswordHash = ""
	return &LoginResult{User: &safe, Pair: pair}, nil
}

// Login runs the lockout check before touching credentials, so a caller
// cannot distinguish "unknown email" from "wrong password" by timing or
// by which path skipped the guard.
func (s *Service) Login(ctx context.Context, req LoginRequest, device token.DeviceInfo) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if blocked, retryAfter := s.guard.IsBlocked(ctx, email); blocked {
		return nil, &AccountLockedError{RetryAfter: retryAfter}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(req.Password))
			s.guard.RecordFailure(ctx, email, device.IP)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		if tripped := s.guard.RecordFailure(ctx, email, device.IP); tripped {
			return nil, &AccountLockedError{RetryAfter: s.guard.BlockDuration()}
		}
		return nil, ErrInvalidCredentials
	}

	s.guard.Reset(ctx, email)

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	pair, err := s.tokens.IssuePair(ctx, user, device)
	if err != nil {
		return nil, err
	}

	safe := *user
	safe.PasswordHash = ""
	return &LoginResult{User: &safe, Pair: pair}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string, device token.DeviceInfo) (*token.Pair, error) {
	return s.tokens.Rotate(ctx, refreshToken, device)
}

// Logout blacklists the access token for its remaining lifetime and
// revokes the session named by the refresh token. Without a refresh
// token the current device's fingerprint decides which session dies.
func (s *Service) Logout(ctx context.Context, userID int64, accessToken, refreshToken string, device token.DeviceInfo) error {
	if err := s.tokens.Blacklist(ctx, accessToken); err != nil && err != token.ErrInvalid {
		return err
	}

	fingerprint := device.Fingerprint()
	if refreshToken != "" {
		if claims, err := s.tokens.PeekRefresh(refreshToken); err == nil && claims.UserID == userID {
			fingerprint = claims.Fingerprint
		}
	}

	s.tokens.RevokeSession(ctx, userID, fingerprint)
	return nil
}

func (s *Service) ListSessions(ctx context.Context, userID int64, currentFingerprint string) ([]SessionResponse, error) {
	records, err := s.tokens.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions := make([]SessionResponse, 0, len(records))
	for _, r := range records {
		sessions = append(sessions, SessionResponse{
			Fingerprint: r.Fingerprint,
			Browser:     r.Browser,
			OS:          r.OS,
			IP:          r.IP,
			CreatedAt:   r.CreatedAt,
			Current:     r.Fingerprint == currentFingerprint,
		})
	}
	return sessions, nil
}

func (s *Service) RevokeSession(ctx context.Context, userID int64, fingerprint string) bool {
	return s.tokens.RevokeSession(ctx, userID, fingerprint)
}

func (s *Service) RevokeAllSessions(ctx context.Context, userID int64) int {
	return s.tokens.RevokeAllSessions(ctx, userID)
}
