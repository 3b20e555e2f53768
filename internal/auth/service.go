package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/platform/password"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// PermissionLister computes the effective permissions of a user.
type PermissionLister interface {
	Effective(ctx context.Context, q db.DBTX, userID int64) (rbac.EffectiveSet, error)
}

// Service wraps authentication business rules.
type Service struct {
	uow    *db.UnitOfWork
	repo   Repository
	hasher password.Hasher
	perms  PermissionLister
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(uow *db.UnitOfWork, repo Repository, hasher password.Hasher, perms PermissionLister, logger *slog.Logger) *Service {
	if hasher == nil {
		hasher = password.Bcrypt{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uow: uow, repo: repo, hasher: hasher, perms: perms, logger: logger}
}

// Authenticate validates login/password credentials. Unknown, inactive and
// archived accounts all fail with shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, cmd LoginCommand) (shared.Principal, error) {
	if err := shared.Validate(cmd); err != nil {
		return shared.Principal{}, err
	}
	return db.ExecuteTransaction(ctx, s.uow, "auth.login", func(ctx context.Context, tx pgx.Tx) (shared.Principal, error) {
		cred, err := s.repo.FindByLogin(ctx, tx, cmd.Login)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.Principal{}, shared.ErrInvalidCredentials
			}
			return shared.Principal{}, err
		}
		if !cred.CanLogin() {
			s.logger.Info("login refused", slog.Int64("user_id", cred.ID), slog.Bool("active", cred.IsActive))
			return shared.Principal{}, shared.ErrInvalidCredentials
		}
		if err := s.hasher.Compare(cred.PasswordHash, cmd.Password); err != nil {
			if errors.Is(err, password.ErrMismatch) {
				return shared.Principal{}, shared.ErrInvalidCredentials
			}
			return shared.Principal{}, err
		}
		return shared.Principal{UserID: cred.ID, Username: cred.Username}, nil
	})
}

// Me returns the principal with its effective permission names.
func (s *Service) Me(ctx context.Context, p shared.Principal) (Me, error) {
	return db.ExecuteTransaction(ctx, s.uow, "auth.me", func(ctx context.Context, tx pgx.Tx) (Me, error) {
		set, err := s.perms.Effective(ctx, tx, p.UserID)
		if err != nil {
			return Me{}, err
		}
		return Me{
			UserID:      p.UserID,
			Username:    p.Username,
			Permissions: set.Names(),
			Denied:      set.Denied(),
		}, nil
	})
}
