package users

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/changes"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/platform/password"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUser(ctx context.Context, q db.DBTX, id int64) (User, error)
	ListUsers(ctx context.Context, q db.DBTX, filters shared.ListFilters) ([]User, int, error)
	UserOptions(ctx context.Context, q db.DBTX, search string) ([]shared.Option, error)
	UserRoles(ctx context.Context, q db.DBTX, userID int64) ([]shared.Option, error)
	CreateUser(ctx context.Context, q db.DBTX, u User) (User, error)
	UpdateUser(ctx context.Context, q db.DBTX, u User) (User, error)
	SetUserArchived(ctx context.Context, q db.DBTX, id int64, archive bool, actor *int64) (User, error)
	MarkEmailVerified(ctx context.Context, q db.DBTX, id int64, actor *int64) (User, error)
}

// Authorizer checks the actor's permission inside the command transaction.
type Authorizer interface {
	Require(ctx context.Context, q db.DBTX, actorID int64, permission string) error
}

// Service handles user business logic.
type Service struct {
	uow     *db.UnitOfWork
	repo    RepositoryPort
	authz   Authorizer
	audit   audit.Recorder
	hasher  password.Hasher
	tracker *changes.Tracker[User]
}

// NewService builds Service instance.
func NewService(uow *db.UnitOfWork, repo RepositoryPort, authz Authorizer, recorder audit.Recorder, hasher password.Hasher, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if hasher == nil {
		hasher = password.Bcrypt{}
	}
	ts := changes.InTimezone(loc)
	return &Service{
		uow:    uow,
		repo:   repo,
		authz:  authz,
		audit:  recorder,
		hasher: hasher,
		tracker: changes.NewTracker(
			changes.Field[User]{Name: "username", Value: func(u User) any { return u.Username }},
			changes.Field[User]{Name: "email", Value: func(u User) any { return u.Email }},
			changes.Field[User]{Name: "first_name", Value: func(u User) any { return u.FirstName }},
			changes.Field[User]{Name: "last_name", Value: func(u User) any { return u.LastName }},
			changes.Field[User]{Name: "is_active", Value: func(u User) any { return u.IsActive }},
			changes.Field[User]{Name: "email_verified", Value: func(u User) any { return u.EmailVerified }},
			changes.Field[User]{Name: "email_verified_at", Value: func(u User) any { return u.EmailVerifiedAt }, Normalize: ts},
			changes.Field[User]{Name: "deleted_at", Value: func(u User) any { return u.DeletedAt }, Normalize: ts},
		),
	}
}

// Get returns a user with its active roles.
func (s *Service) Get(ctx context.Context, info shared.RequestInfo, id int64) (User, error) {
	return db.ExecuteTransaction(ctx, s.uow, "users.get", func(ctx context.Context, tx pgx.Tx) (User, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermUsersRead); err != nil {
			return User{}, err
		}
		u, err := s.repo.GetUser(ctx, tx, id)
		if err != nil {
			return User{}, err
		}
		roles, err := s.repo.UserRoles(ctx, tx, id)
		if err != nil {
			return User{}, err
		}
		if roles == nil {
			roles = []shared.Option{}
		}
		u.Roles = roles
		return u, nil
	})
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, info shared.RequestInfo, filters shared.ListFilters) (shared.Page[User], error) {
	filters = filters.Normalize()
	return db.ExecuteTransaction(ctx, s.uow, "users.list", func(ctx context.Context, tx pgx.Tx) (shared.Page[User], error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermUsersRead); err != nil {
			return shared.Page[User]{}, err
		}
		items, total, err := s.repo.ListUsers(ctx, tx, filters)
		if err != nil {
			return shared.Page[User]{}, err
		}
		return shared.NewPage(items, filters, total), nil
	})
}

// Combobox returns active users as options labelled by username.
func (s *Service) Combobox(ctx context.Context, info shared.RequestInfo, search string) ([]shared.Option, error) {
	return db.ExecuteTransaction(ctx, s.uow, "users.combobox", func(ctx context.Context, tx pgx.Tx) ([]shared.Option, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermUsersRead); err != nil {
			return nil, err
		}
		opts, err := s.repo.UserOptions(ctx, tx, search)
		if err != nil {
			return nil, err
		}
		if opts == nil {
			opts = []shared.Option{}
		}
		return opts, nil
	})
}

// Create registers a user. The password is stored as a bcrypt hash.
func (s *Service) Create(ctx context.Context, info shared.RequestInfo, cmd CreateCommand) (User, error) {
	cmd.Username = strings.ToLower(strings.TrimSpace(cmd.Username))
	cmd.Email = strings.ToLower(strings.TrimSpace(cmd.Email))
	cmd.FirstName, cmd.LastName = strings.TrimSpace(cmd.FirstName), strings.TrimSpace(cmd.LastName)
	return db.ExecuteTransaction(ctx, s.uow, "users.create", func(ctx context.Context, tx pgx.Tx) (User, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermUsersCreate); err != nil {
			return User{}, err
		}
		if err := shared.Validate(cmd); err != nil {
			return User{}, err
		}
		hash, err := s.hasher.Hash(cmd.Password)
		if err != nil {
			return User{}, err
		}
		active := true
		if cmd.IsActive != nil {
			active = *cmd.IsActive
		}
		created, err := s.repo.CreateUser(ctx, tx, User{
			Username:     cmd.Username,
			Email:        cmd.Email,
			FirstName:    cmd.FirstName,
			LastName:     cmd.LastName,
			PasswordHash: hash,
			IsActive:     active,
			Stamps:       shared.Stamps{CreatedBy: info.Actor(), UpdatedBy: info.Actor()},
		})
		if err != nil {
			return User{}, err
		}
		entry := audit.Mutation(audit.ActionCreate, audit.EntityUser, created.ID, info, changes.Diff(nil, s.tracker.Snapshot(created)), "")
		if err := s.audit.Record(ctx, tx, entry); err != nil {
			return User{}, err
		}
		return created, nil
	})
}

// Update edits an active user. Changing the email clears its verification.
func (s *Service) Update(ctx context.Context, info shared.RequestInfo, cmd UpdateCommand) (User, error) {
	cmd.Username = strings.ToLower(strings.TrimSpace(cmd.Username))
	cmd.Email = strings.ToLower(strings.TrimSpace(cmd.Email))
	cmd.FirstName, cmd.LastName = strings.TrimSpace(cmd.FirstName), strings.TrimSpace(cmd.LastName)
	return db.ExecuteTransaction(ctx, s.uow, "users.update", func(ctx context.Context, tx pgx.Tx) (User, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermUsersUpdate); err != nil {
			return User{}, err
		}
		if cmd.ID <= 0 {
			return User{}, shared.Validation("id is required")
		}
		if err := shared.Validate(cmd); err != nil {
			return User{}, err
		}
		before, err := s.repo.GetUser(ctx, tx, cmd.ID)
		if err != nil {
			return User{}, err
		}
		if err := before.EnsureMutable("User"); err != nil {
			return User{}, err
		}
		if cmd.Username != "" && cmd.Username != before.Username {
			return User{}, &shared.Error{
				Kind:    shared.KindValidation,
				Message: "username cannot be changed",
				Fields:  map[string]string{"username": "cannot be changed"},
			}
		}

		next := before
		next.Email, next.FirstName, next.LastName = cmd.Email, cmd.FirstName, cmd.LastName
		if cmd.IsActive != nil {
			next.IsActive = *cmd.IsActive
		}
		if next.Email != before.Email {
			next.EmailVerified, next.EmailVerifiedAt = false, nil
		}
		note := ""
		if cmd.Password != "" {
			if next.PasswordHash, err = s.hasher.Hash(cmd.Password); err != nil {
				return User{}, err
			}
			note = "password changed"
		}
		next.UpdatedBy = info.Actor()

		after, err := s.repo.UpdateUser(ctx, tx, next)
		if err != nil {
			return User{}, err
		}
		entry := audit.Mutation(audit.ActionUpdate, audit.EntityUser, after.ID, info, s.tracker.Diff(before, after), note)
		if err := s.audit.Record(ctx, tx, entry); err != nil {
			return User{}, err
		}
		return after, nil
	})
}

// Archive soft-deletes a user. Archived users cannot log in and resolve no permissions.
func (s *Service) Archive(ctx context.Context, info shared.RequestInfo, id int64) (User, error) {
	return s.setArchived(ctx, info, id, true)
}

// Restore reactivates an archived user.
func (s *Service) Restore(ctx context.Context, info shared.RequestInfo, id int64) (User, error) {
	return s.setArchived(ctx, info, id, false)
}

func (s *Service) setArchived(ctx context.Context, info shared.RequestInfo, id int64, archive bool) (User, error) {
	label, perm, action := "users.restore", rbac.PermUsersRestore, audit.ActionRestore
	if archive {
		label, perm, action = "users.archive", rbac.PermUsersArchive, audit.ActionArchive
	}
	return db.ExecuteTransaction(ctx, s.uow, label, func(ctx context.Context, tx pgx.Tx) (User, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, perm); err != nil {
			return User{}, err
		}
		if archive && id == info.ActorID {
			return User{}, shared.Validation("you cannot archive your own account")
		}
		before, err := s.repo.GetUser(ctx, tx, id)
		if err != nil {
			return User{}, err
		}
		if archive {
			err = before.EnsureArchivable("User")
		} else {
			err = before.EnsureRestorable("User")
		}
		if err != nil {
			return User{}, err
		}
		after, err := s.repo.SetUserArchived(ctx, tx, id, archive, info.Actor())
		if err != nil {
			return User{}, err
		}
		if err := s.audit.Record(ctx, tx, audit.Mutation(action, audit.EntityUser, id, info, s.tracker.Diff(before, after), "")); err != nil {
			return User{}, err
		}
		return after, nil
	})
}

// VerifyEmail marks the email of an active user verified. It succeeds once.
func (s *Service) VerifyEmail(ctx context.Context, info shared.RequestInfo, id int64) (User, error) {
	return db.ExecuteTransaction(ctx, s.uow, "users.verify_email", func(ctx context.Context, tx pgx.Tx) (User, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermUsersVerifyEmail); err != nil {
			return User{}, err
		}
		before, err := s.repo.GetUser(ctx, tx, id)
		if err != nil {
			return User{}, err
		}
		if err := before.EnsureMutable("User"); err != nil {
			return User{}, err
		}
		if before.EmailVerified {
			return User{}, shared.Validation("email is already verified")
		}
		after, err := s.repo.MarkEmailVerified(ctx, tx, id, info.Actor())
		if err != nil {
			return User{}, err
		}
		if err := s.audit.Record(ctx, tx, audit.Mutation(audit.ActionVerifyEmail, audit.EntityUser, id, info, s.tracker.Diff(before, after), "")); err != nil {
			return User{}, err
		}
		return after, nil
	})
}
