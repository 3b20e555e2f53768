package roles

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/changes"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	GetRole(ctx context.Context, q db.DBTX, id int64) (Role, error)
	ListRoles(ctx context.Context, q db.DBTX, filters shared.ListFilters) ([]Role, int, error)
	RoleOptions(ctx context.Context, q db.DBTX, search string) ([]shared.Option, error)
	RolePermissions(ctx context.Context, q db.DBTX, roleID int64) ([]shared.Option, error)
	CreateRole(ctx context.Context, q db.DBTX, role Role) (Role, error)
	UpdateRole(ctx context.Context, q db.DBTX, role Role) (Role, error)
	SetRoleArchived(ctx context.Context, q db.DBTX, id int64, archive bool, actor *int64) (Role, error)
}

// Authorizer checks the actor's permission inside the command transaction.
type Authorizer interface {
	Require(ctx context.Context, q db.DBTX, actorID int64, permission string) error
}

// Service handles role business logic.
type Service struct {
	uow     *db.UnitOfWork
	repo    RepositoryPort
	authz   Authorizer
	audit   audit.Recorder
	tracker *changes.Tracker[Role]
}

// NewService builds Service instance.
func NewService(uow *db.UnitOfWork, repo RepositoryPort, authz Authorizer, recorder audit.Recorder, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		uow:   uow,
		repo:  repo,
		authz: authz,
		audit: recorder,
		tracker: changes.NewTracker(
			changes.Field[Role]{Name: "name", Value: func(r Role) any { return r.Name }},
			changes.Field[Role]{Name: "description", Value: func(r Role) any { return r.Description }},
			changes.Field[Role]{Name: "deleted_at", Value: func(r Role) any { return r.DeletedAt }, Normalize: changes.InTimezone(loc)},
		),
	}
}

// Get returns a role with its active permissions.
func (s *Service) Get(ctx context.Context, info shared.RequestInfo, id int64) (Role, error) {
	return db.ExecuteTransaction(ctx, s.uow, "roles.get", func(ctx context.Context, tx pgx.Tx) (Role, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermRolesRead); err != nil {
			return Role{}, err
		}
		role, err := s.repo.GetRole(ctx, tx, id)
		if err != nil {
			return Role{}, err
		}
		perms, err := s.repo.RolePermissions(ctx, tx, id)
		if err != nil {
			return Role{}, err
		}
		role.Permissions = perms
		if role.Permissions == nil {
			role.Permissions = []shared.Option{}
		}
		return role, nil
	})
}

// List returns a page of roles.
func (s *Service) List(ctx context.Context, info shared.RequestInfo, filters shared.ListFilters) (shared.Page[Role], error) {
	filters = filters.Normalize()
	return db.ExecuteTransaction(ctx, s.uow, "roles.list", func(ctx context.Context, tx pgx.Tx) (shared.Page[Role], error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermRolesRead); err != nil {
			return shared.Page[Role]{}, err
		}
		items, total, err := s.repo.ListRoles(ctx, tx, filters)
		if err != nil {
			return shared.Page[Role]{}, err
		}
		return shared.NewPage(items, filters, total), nil
	})
}

// Combobox returns active roles as options.
func (s *Service) Combobox(ctx context.Context, info shared.RequestInfo, search string) ([]shared.Option, error) {
	return db.ExecuteTransaction(ctx, s.uow, "roles.combobox", func(ctx context.Context, tx pgx.Tx) ([]shared.Option, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermRolesRead); err != nil {
			return nil, err
		}
		opts, err := s.repo.RoleOptions(ctx, tx, search)
		if err != nil {
			return nil, err
		}
		if opts == nil {
			opts = []shared.Option{}
		}
		return opts, nil
	})
}

// Create inserts a role.
func (s *Service) Create(ctx context.Context, info shared.RequestInfo, cmd RoleCommand) (Role, error) {
	cmd.Name, cmd.Description = strings.TrimSpace(cmd.Name), strings.TrimSpace(cmd.Description)
	return db.ExecuteTransaction(ctx, s.uow, "roles.create", func(ctx context.Context, tx pgx.Tx) (Role, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermRolesCreate); err != nil {
			return Role{}, err
		}
		if err := shared.Validate(cmd); err != nil {
			return Role{}, err
		}
		created, err := s.repo.CreateRole(ctx, tx, Role{
			Name:        cmd.Name,
			Description: cmd.Description,
			Stamps:      shared.Stamps{CreatedBy: info.Actor(), UpdatedBy: info.Actor()},
		})
		if err != nil {
			return Role{}, err
		}
		entry := audit.Mutation(audit.ActionCreate, audit.EntityRole, created.ID, info, changes.Diff(nil, s.tracker.Snapshot(created)), "")
		if err := s.audit.Record(ctx, tx, entry); err != nil {
			return Role{}, err
		}
		return created, nil
	})
}

// Update renames or redescribes an active role.
func (s *Service) Update(ctx context.Context, info shared.RequestInfo, cmd RoleCommand) (Role, error) {
	cmd.Name, cmd.Description = strings.TrimSpace(cmd.Name), strings.TrimSpace(cmd.Description)
	return db.ExecuteTransaction(ctx, s.uow, "roles.update", func(ctx context.Context, tx pgx.Tx) (Role, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermRolesUpdate); err != nil {
			return Role{}, err
		}
		if cmd.ID <= 0 {
			return Role{}, shared.Validation("id is required")
		}
		if err := shared.Validate(cmd); err != nil {
			return Role{}, err
		}
		before, err := s.repo.GetRole(ctx, tx, cmd.ID)
		if err != nil {
			return Role{}, err
		}
		if err := before.EnsureMutable("Role"); err != nil {
			return Role{}, err
		}
		next := before
		next.Name, next.Description, next.UpdatedBy = cmd.Name, cmd.Description, info.Actor()
		after, err := s.repo.UpdateRole(ctx, tx, next)
		if err != nil {
			return Role{}, err
		}
		entry := audit.Mutation(audit.ActionUpdate, audit.EntityRole, after.ID, info, s.tracker.Diff(before, after), "")
		if err := s.audit.Record(ctx, tx, entry); err != nil {
			return Role{}, err
		}
		return after, nil
	})
}

// Archive soft-deletes a role. Users holding it lose its permissions.
func (s *Service) Archive(ctx context.Context, info shared.RequestInfo, id int64) (Role, error) {
	return s.setArchived(ctx, info, id, true)
}

// Restore reactivates an archived role.
func (s *Service) Restore(ctx context.Context, info shared.RequestInfo, id int64) (Role, error) {
	return s.setArchived(ctx, info, id, false)
}

func (s *Service) setArchived(ctx context.Context, info shared.RequestInfo, id int64, archive bool) (Role, error) {
	label, perm, action := "roles.restore", rbac.PermRolesRestore, audit.ActionRestore
	if archive {
		label, perm, action = "roles.archive", rbac.PermRolesArchive, audit.ActionArchive
	}
	return db.ExecuteTransaction(ctx, s.uow, label, func(ctx context.Context, tx pgx.Tx) (Role, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, perm); err != nil {
			return Role{}, err
		}
		before, err := s.repo.GetRole(ctx, tx, id)
		if err != nil {
			return Role{}, err
		}
		if archive {
			err = before.EnsureArchivable("Role")
		} else {
			err = before.EnsureRestorable("Role")
		}
		if err != nil {
			return Role{}, err
		}
		after, err := s.repo.SetRoleArchived(ctx, tx, id, archive, info.Actor())
		if err != nil {
			return Role{}, err
		}
		if err := s.audit.Record(ctx, tx, audit.Mutation(action, audit.EntityRole, id, info, s.tracker.Diff(before, after), "")); err != nil {
			return Role{}, err
		}
		return after, nil
	})
}
