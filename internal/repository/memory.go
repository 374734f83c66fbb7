package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"templatedev/api/internal/models"
)

// MemoryStore keeps users and refresh tokens in process. It enforces the
// same uniqueness and cascade rules as the postgres schema.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]models.User
	emails map[string]string
	tokens map[string]models.RefreshToken
	byTok  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]models.User),
		emails: make(map[string]string),
		tokens: make(map[string]models.RefreshToken),
		byTok:  make(map[string]string),
	}
}

func (s *MemoryStore) Users() *MemoryUserRepository {
	return &MemoryUserRepository{s: s}
}

func (s *MemoryStore) RefreshTokens() *MemoryRefreshTokenRepository {
	return &MemoryRefreshTokenRepository{s: s}
}

type MemoryUserRepository struct {
	s *MemoryStore
}

func (r *MemoryUserRepository) Create(_ context.Context, user models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.emails[user.Email]; ok {
		return ErrEmailTaken
	}
	r.s.users[user.ID] = user
	r.s.emails[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.emails[email]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return r.s.users[id], nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) List(_ context.Context) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	users := make([]models.User, 0, len(r.s.users))
	for _, user := range r.s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID > users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (r *MemoryUserRepository) Update(_ context.Context, user models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	if owner, taken := r.s.emails[user.Email]; taken && owner != user.ID {
		return ErrEmailTaken
	}

	delete(r.s.emails, current.Email)
	current.Email = user.Email
	current.Name = user.Name
	current.Role = user.Role
	current.UpdatedAt = user.UpdatedAt
	r.s.users[user.ID] = current
	r.s.emails[current.Email] = current.ID
	return nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(r.s.users, id)
	delete(r.s.emails, user.Email)

	for tokenID, token := range r.s.tokens {
		if token.UserID == id {
			delete(r.s.tokens, tokenID)
			delete(r.s.byTok, token.Token)
		}
	}
	return nil
}

type MemoryRefreshTokenRepository struct {
	s *MemoryStore
}

func (r *MemoryRefreshTokenRepository) Create(_ context.Context, token models.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[token.UserID]; !ok {
		return ErrUserNotFound
	}
	if _, ok := r.s.byTok[token.Token]; ok {
		return ErrDuplicateToken
	}
	r.s.tokens[token.ID] = token
	r.s.byTok[token.Token] = token.ID
	return nil
}

func (r *MemoryRefreshTokenRepository) FindByToken(_ context.Context, token string) (models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.byTok[token]
	if !ok {
		return models.RefreshToken{}, ErrRefreshTokenNotFound
	}
	return r.s.tokens[id], nil
}

func (r *MemoryRefreshTokenRepository) DeleteByID(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	token, ok := r.s.tokens[id]
	if !ok {
		return false, nil
	}
	delete(r.s.tokens, id)
	delete(r.s.byTok, token.Token)
	return true, nil
}

func (r *MemoryRefreshTokenRepository) DeleteByUserAndToken(_ context.Context, userID, token string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.byTok[token]
	if !ok || r.s.tokens[id].UserID != userID {
		return 0, nil
	}
	delete(r.s.tokens, id)
	delete(r.s.byTok, token)
	return 1, nil
}

func (r *MemoryRefreshTokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for id, token := range r.s.tokens {
		if !token.ExpiresAt.After(before) {
			delete(r.s.tokens, id)
			delete(r.s.byTok, token.Token)
			removed++
		}
	}
	return removed, nil
}

// CountByUser is used by tests to observe stored state.
func (r *MemoryRefreshTokenRepository) CountByUser(_ context.Context, userID string) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	count := 0
	for _, token := range r.s.tokens {
		if token.UserID == userID {
			count++
		}
	}
	return count
}
