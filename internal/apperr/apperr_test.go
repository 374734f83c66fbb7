package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKindAndMessage(t *testing.T) {
	err := fmt.Errorf("login: %w", Authentication("invalid credentials"))

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NotErrorIs(t, err, ErrInvalidRefreshToken)
	assert.ErrorIs(t, err, &Error{Kind: KindAuthentication})
	assert.NotErrorIs(t, err, &Error{Kind: KindConflict})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("invalid input", map[string]string{"email": "must be a valid email"}), KindValidation},
		{"wrapped conflict", fmt.Errorf("register: %w", ErrEmailTaken), KindConflict},
		{"authorization", Authorization("Admin access required"), KindAuthorization},
		{"not found", NotFound("User with ID x not found"), KindNotFound},
		{"plain error", errors.New("connection reset"), KindInternal},
		{"nil", nil, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := &Error{Kind: KindInternal, Message: "persist refresh token", Err: errors.New("timeout")}
	assert.Equal(t, "persist refresh token: timeout", err.Error())
	assert.Equal(t, "internal", err.Kind.String())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, HTTPStatus(KindValidation))
	assert.Equal(t, 401, HTTPStatus(KindAuthentication))
	assert.Equal(t, 403, HTTPStatus(KindAuthorization))
	assert.Equal(t, 404, HTTPStatus(KindNotFound))
	assert.Equal(t, 409, HTTPStatus(KindConflict))
	assert.Equal(t, 500, HTTPStatus(KindInternal))
}
