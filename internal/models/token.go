package models

import "time"

// RefreshToken is a single-use credential. Redeeming or revoking it removes the row.
type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t RefreshToken) ExpiredAt(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

type TokenPair struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         PublicUser `json:"user"`
}
