package users

import (
	"context"
	"errors"
	"log"

	"storeapi/internal/domain"
	"storeapi/internal/token"

	"gorm.io/gorm"
)

type Service struct {
	users  UserRepositoryInterface
	tokens *token.Service
}

func NewService(users UserRepositoryInterface, tokens *token.Service) *Service {
	return &Service{users: users, tokens: tokens}
}

func (s *Service) GetProfile(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, req UpdateProfileRequest) (*domain.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.Name = req.Name
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetStatus toggles an account. Deactivation also kills every live
// session so the tokens already in the wild stop working on refresh.
func (s *Service) SetStatus(ctx context.Context, userID int64, active bool) (*domain.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.IsActive = active
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	if !active {
		revoked := s.tokens.RevokeAllSessions(ctx, userID)
		log.Printf("level=info msg=\"account deactivated\" user_id=%d sessions_revoked=%d", userID, revoked)
	}
	return user, nil
}
