package users

import (
	"context"

	"github.com/dmitrijs2005/zappro/internal/server/models"
)

// Repository stores user accounts. Lookups of absent users return
// common.ErrorNotFound; creating a duplicate email returns
// common.ErrorAlreadyExists.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
}
