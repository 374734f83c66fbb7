package models

import "time"

type UserRole string

const (
	UserRoleUser  UserRole = "USER"
	UserRoleAdmin UserRole = "ADMIN"
)

func (r UserRole) Valid() bool {
	return r == UserRoleUser || r == UserRoleAdmin
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         *string
	Role         UserRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the only user shape that leaves the process.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// AuthContext is the identity decoded from a verified access token.
type AuthContext struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
}

func (a AuthContext) IsAdmin() bool {
	return a.Role == UserRoleAdmin
}
