package users

import (
	"context"

	"storeapi/internal/domain"
)

type UserRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
}
