package repo

import (
	"context"
	"errors"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (models.User, error)
	CreateUser(ctx context.Context, u models.User) (models.User, error)
}
