package rpc

import (
	"context"
	"encoding/json"

	"templatedev/api/internal/apperr"
	"templatedev/api/internal/models"
	"templatedev/api/internal/policy"
	"templatedev/api/internal/service"
	"templatedev/api/internal/validation"
)

type refreshTokenInput struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type userIDInput struct {
	ID string `json:"id" validate:"required"`
}

type updateUserInput struct {
	ID   string                  `json:"id" validate:"required"`
	Data service.UpdateUserInput `json:"data"`
}

type messageOutput struct {
	Message string `json:"message"`
}

// Procedures builds the procedure table served under /trpc.
func Procedures(auth *service.AuthService, users *service.UserService) map[string]Procedure {
	return map[string]Procedure{
		policy.OpAuthRegister: {
			Kind:        Mutation,
			RateLimited: true,
			Handler: func(ctx context.Context, _ Context, raw json.RawMessage) (any, error) {
				var input service.RegisterInput
				if err := decode(raw, &input); err != nil {
					return nil, err
				}
				return auth.Register(ctx, input)
			},
		},
		policy.OpAuthLogin: {
			Kind:        Mutation,
			RateLimited: true,
			Handler: func(ctx context.Context, _ Context, raw json.RawMessage) (any, error) {
				var input service.LoginInput
				if err := decode(raw, &input); err != nil {
					return nil, err
				}
				return auth.Login(ctx, input)
			},
		},
		policy.OpAuthRefresh: {
			Kind:        Mutation,
			RateLimited: true,
			Handler: func(ctx context.Context, _ Context, raw json.RawMessage) (any, error) {
				var input refreshTokenInput
				if err := decodeValid(raw, &input); err != nil {
					return nil, err
				}
				return auth.Refresh(ctx, input.RefreshToken)
			},
		},
		policy.OpAuthMe: {
			Kind: Query,
			Handler: func(ctx context.Context, rc Context, _ json.RawMessage) (any, error) {
				caller, err := requireUser(rc)
				if err != nil {
					return nil, err
				}
				return auth.Me(ctx, caller)
			},
		},
		policy.OpAuthLogout: {
			Kind: Mutation,
			Handler: func(ctx context.Context, rc Context, raw json.RawMessage) (any, error) {
				caller, err := requireUser(rc)
				if err != nil {
					return nil, err
				}
				var input refreshTokenInput
				if err := decodeValid(raw, &input); err != nil {
					return nil, err
				}
				if err := auth.Logout(ctx, caller.UserID, input.RefreshToken); err != nil {
					return nil, err
				}
				return messageOutput{Message: "Logged out successfully"}, nil
			},
		},
		policy.OpUsersList: {
			Kind: Query,
			Handler: func(ctx context.Context, _ Context, _ json.RawMessage) (any, error) {
				return users.List(ctx)
			},
		},
		policy.OpUsersGet: {
			Kind: Query,
			Handler: func(ctx context.Context, rc Context, raw json.RawMessage) (any, error) {
				caller, err := requireUser(rc)
				if err != nil {
					return nil, err
				}
				var input userIDInput
				if err := decodeValid(raw, &input); err != nil {
					return nil, err
				}
				return users.Get(ctx, caller, input.ID)
			},
		},
		policy.OpUsersUpdate: {
			Kind: Mutation,
			Handler: func(ctx context.Context, rc Context, raw json.RawMessage) (any, error) {
				caller, err := requireUser(rc)
				if err != nil {
					return nil, err
				}
				var input updateUserInput
				if err := decodeValid(raw, &input); err != nil {
					return nil, err
				}
				return users.Update(ctx, caller, input.ID, input.Data)
			},
		},
		policy.OpUsersDelete: {
			Kind: Mutation,
			Handler: func(ctx context.Context, rc Context, raw json.RawMessage) (any, error) {
				caller, err := requireUser(rc)
				if err != nil {
					return nil, err
				}
				var input userIDInput
				if err := decodeValid(raw, &input); err != nil {
					return nil, err
				}
				if err := users.Delete(ctx, caller, input.ID); err != nil {
					return nil, err
				}
				return messageOutput{Message: service.DeletedMessage(input.ID)}, nil
			},
		},
	}
}

func requireUser(rc Context) (models.AuthContext, error) {
	if rc.User == nil {
		return models.AuthContext{}, apperr.ErrUnauthenticated
	}
	return *rc.User, nil
}

// decode unmarshals raw into out. Missing input leaves out untouched so the
// service reports which fields are required.
func decode(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Validation("invalid input", nil)
	}
	return nil
}

func decodeValid(raw json.RawMessage, out any) error {
	if err := decode(raw, out); err != nil {
		return err
	}
	return validation.Struct(out)
}
