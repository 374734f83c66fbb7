package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"templatedev/api/internal/apperr"
	"templatedev/api/internal/models"
	"templatedev/api/internal/policy"
	"templatedev/api/internal/repository"
	"templatedev/api/internal/validation"
)

type UserDirectory interface {
	GetByID(ctx context.Context, id string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, user models.User) error
	Delete(ctx context.Context, id string) error
}

// UserService manages accounts on behalf of an authenticated caller.
type UserService struct {
	users UserDirectory
	now   func() time.Time
	log   zerolog.Logger
}

func NewUserService(users UserDirectory, log zerolog.Logger) *UserService {
	return &UserService{
		users: users,
		now:   time.Now,
		log:   log,
	}
}

func (s *UserService) List(ctx context.Context) ([]models.PublicUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]models.PublicUser, 0, len(users))
	for _, user := range users {
		out = append(out, user.Public())
	}
	return out, nil
}

func (s *UserService) Get(ctx context.Context, caller models.AuthContext, id string) (models.PublicUser, error) {
	if err := policy.OwnerOrAdmin(id, caller).Err(); err != nil {
		return models.PublicUser{}, err
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return models.PublicUser{}, err
	}
	return user.Public(), nil
}

type UpdateUserInput struct {
	Email *string          `json:"email,omitempty" validate:"omitempty,email"`
	Name  *string          `json:"name,omitempty" validate:"omitempty,max=100"`
	Role  *models.UserRole `json:"role,omitempty" validate:"omitempty,oneof=USER ADMIN"`
}

func (s *UserService) Update(ctx context.Context, caller models.AuthContext, id string, input UpdateUserInput) (models.PublicUser, error) {
	if err := policy.OwnerOrAdmin(id, caller).Err(); err != nil {
		return models.PublicUser{}, err
	}
	if input.Role != nil {
		if err := policy.CheckRoles([]models.UserRole{models.UserRoleAdmin}, caller).Err(); err != nil {
			return models.PublicUser{}, err
		}
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		input.Email = &email
	}
	if err := validation.Struct(input); err != nil {
		return models.PublicUser{}, err
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return models.PublicUser{}, err
	}

	if input.Email != nil {
		user.Email = *input.Email
	}
	if input.Name != nil {
		user.Name = trimName(*input.Name)
	}
	if input.Role != nil {
		user.Role = *input.Role
	}
	user.UpdatedAt = s.now()

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailTaken):
			return models.PublicUser{}, apperr.ErrEmailTaken
		case errors.Is(err, repository.ErrUserNotFound):
			return models.PublicUser{}, userNotFound(id)
		default:
			return models.PublicUser{}, fmt.Errorf("update user: %w", err)
		}
	}

	return user.Public(), nil
}

// Delete removes the account and, through the store, its refresh tokens.
func (s *UserService) Delete(ctx context.Context, caller models.AuthContext, id string) error {
	if err := policy.OwnerOrAdmin(id, caller).Err(); err != nil {
		return err
	}
	if err := s.users.Delete(context.WithoutCancel(ctx), id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return userNotFound(id)
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.log.Info().Str("user_id", id).Str("by", caller.UserID).Msg("user deleted")
	return nil
}

func (s *UserService) load(ctx context.Context, id string) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, userNotFound(id)
		}
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// DeletedMessage is the confirmation both transports return after Delete.
func DeletedMessage(id string) string {
	return fmt.Sprintf("User %s deleted successfully", id)
}
