package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// userRepo is the storage interface consumed by Service.
type userRepo interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*User, error)
	LinkGitHub(ctx context.Context, userID uuid.UUID, githubID int64, login, accessToken string) error
	AccessToken(ctx context.Context, userID uuid.UUID) (string, error)
	UpdateIdentity(ctx context.Context, userID uuid.UUID, name, avatarURL string) error
}

// Service implements business logic for user account management.
type Service struct {
	repo   userRepo
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(repo userRepo, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// GetByID retrieves a user by ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// AccessToken returns the user's stored GitHub OAuth access token.
// Returns ErrNoLinkedAccount when the user has no usable token.
func (s *Service) AccessToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.repo.AccessToken(ctx, userID)
}

// GetOrCreateFromGitHub retrieves the user linked to the GitHub identity, or
// creates a new one. The access token is stored (or rotated) on every login
// so that later authenticated API calls use a current token. Returns the user
// and true if a new account was created.
func (s *Service) GetOrCreateFromGitHub(ctx context.Context, githubID int64, login, email, name, avatarURL, accessToken string) (*User, bool, error) {
	u, err := s.repo.GetByGitHubID(ctx, githubID)
	if err == nil {
		if linkErr := s.repo.LinkGitHub(ctx, u.ID, githubID, login, accessToken); linkErr != nil {
			s.logger.Warn("rotate github access token",
				zap.String("user_id", u.ID.String()),
				zap.Error(linkErr),
			)
		}
		if u.Name != name || u.AvatarURL != avatarURL {
			if upErr := s.repo.UpdateIdentity(ctx, u.ID, name, avatarURL); upErr != nil {
				s.logger.Warn("refresh user identity", zap.Error(upErr))
			} else {
				u.Name = name
				u.AvatarURL = avatarURL
			}
		}
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup github user: %w", err)
	}

	if name == "" {
		name = login
	}
	u = &User{Email: email, Name: name, AvatarURL: avatarURL}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, false, fmt.Errorf("create github user: %w", err)
	}
	if err := s.repo.LinkGitHub(ctx, u.ID, githubID, login, accessToken); err != nil {
		return nil, false, fmt.Errorf("link github after create: %w", err)
	}

	s.logger.Info("user created from github login",
		zap.String("user_id", u.ID.String()),
		zap.String("login", login),
	)
	return u, true, nil
}
