// Package auth handles panel operator login and session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetops/botpanel/internal/users"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type RegisterResult struct {
	ID       string
	Username string
	Role     string
}

type Service struct {
	store  *users.Store
	config JWTConfig
}

func NewService(store *users.Store, config JWTConfig) *Service {
	return &Service{store: store, config: config}
}

func (s *Service) Register(ctx context.Context, username, password string) (RegisterResult, error) {
	hash, err := users.HashPassword(password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.Create(ctx, username, hash, users.RoleOperator)
	if err != nil {
		return RegisterResult{}, err
	}

	return RegisterResult{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !users.CheckPassword(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.config, user.ID, user.Username, user.Role)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}
