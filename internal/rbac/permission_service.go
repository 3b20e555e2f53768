package rbac

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/changes"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// PermissionRepository persists the permission catalog.
type PermissionRepository interface {
	GetPermission(ctx context.Context, q db.DBTX, id int64) (Permission, error)
	ListPermissions(ctx context.Context, q db.DBTX, filters shared.ListFilters) ([]Permission, int, error)
	PermissionOptions(ctx context.Context, q db.DBTX, search string) ([]shared.Option, error)
	CreatePermission(ctx context.Context, q db.DBTX, p Permission) (Permission, error)
	UpdatePermission(ctx context.Context, q db.DBTX, p Permission) (Permission, error)
	SetPermissionArchived(ctx context.Context, q db.DBTX, id int64, archive bool, actor *int64) (Permission, error)
}

// PermissionCommand creates or updates a permission.
type PermissionCommand struct {
	ID          int64  `json:"id"`
	Resource    string `json:"resource" validate:"required,max=64,excludesall=: "`
	Action      string `json:"action" validate:"required,max=64,excludesall=: "`
	Description string `json:"description" validate:"max=500"`
}

func (c PermissionCommand) normalized() PermissionCommand {
	c.Resource = normalizePermission(c.Resource)
	c.Action = normalizePermission(c.Action)
	c.Description = strings.TrimSpace(c.Description)
	return c
}

// PermissionService manages the permission catalog.
type PermissionService struct {
	uow     *db.UnitOfWork
	repo    PermissionRepository
	authz   *Resolver
	audit   audit.Recorder
	tracker *changes.Tracker[Permission]
}

// NewPermissionService builds a PermissionService. loc is the canonical
// timezone of recorded timestamps.
func NewPermissionService(uow *db.UnitOfWork, repo PermissionRepository, authz *Resolver, recorder audit.Recorder, loc *time.Location) *PermissionService {
	if loc == nil {
		loc = time.UTC
	}
	return &PermissionService{
		uow:   uow,
		repo:  repo,
		authz: authz,
		audit: recorder,
		tracker: changes.NewTracker(
			changes.Field[Permission]{Name: "name", Value: func(p Permission) any { return p.Name }},
			changes.Field[Permission]{Name: "resource", Value: func(p Permission) any { return p.Resource }},
			changes.Field[Permission]{Name: "action", Value: func(p Permission) any { return p.Action }},
			changes.Field[Permission]{Name: "description", Value: func(p Permission) any { return p.Description }},
			changes.Field[Permission]{Name: "deleted_at", Value: func(p Permission) any { return p.DeletedAt }, Normalize: changes.InTimezone(loc)},
		),
	}
}

// Get returns one permission.
func (s *PermissionService) Get(ctx context.Context, info shared.RequestInfo, id int64) (Permission, error) {
	return db.ExecuteTransaction(ctx, s.uow, "permissions.get", func(ctx context.Context, tx pgx.Tx) (Permission, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, PermPermissionsRead); err != nil {
			return Permission{}, err
		}
		return s.repo.GetPermission(ctx, tx, id)
	})
}

// List returns a page of permissions.
func (s *PermissionService) List(ctx context.Context, info shared.RequestInfo, filters shared.ListFilters) (shared.Page[Permission], error) {
	filters = filters.Normalize()
	return db.ExecuteTransaction(ctx, s.uow, "permissions.list", func(ctx context.Context, tx pgx.Tx) (shared.Page[Permission], error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, PermPermissionsRead); err != nil {
			return shared.Page[Permission]{}, err
		}
		items, total, err := s.repo.ListPermissions(ctx, tx, filters)
		if err != nil {
			return shared.Page[Permission]{}, err
		}
		return shared.NewPage(items, filters, total), nil
	})
}

// Combobox returns active permissions as options.
func (s *PermissionService) Combobox(ctx context.Context, info shared.RequestInfo, search string) ([]shared.Option, error) {
	return db.ExecuteTransaction(ctx, s.uow, "permissions.combobox", func(ctx context.Context, tx pgx.Tx) ([]shared.Option, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, PermPermissionsRead); err != nil {
			return nil, err
		}
		opts, err := s.repo.PermissionOptions(ctx, tx, search)
		if opts == nil && err == nil {
			opts = []shared.Option{}
		}
		return opts, err
	})
}

// Create adds a permission to the catalog.
func (s *PermissionService) Create(ctx context.Context, info shared.RequestInfo, cmd PermissionCommand) (Permission, error) {
	cmd = cmd.normalized()
	return db.ExecuteTransaction(ctx, s.uow, "permissions.create", func(ctx context.Context, tx pgx.Tx) (Permission, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, PermPermissionsCreate); err != nil {
			return Permission{}, err
		}
		if err := shared.Validate(cmd); err != nil {
			return Permission{}, err
		}
		created, err := s.repo.CreatePermission(ctx, tx, Permission{
			Name:        PermissionName(cmd.Resource, cmd.Action),
			Resource:    cmd.Resource,
			Action:      cmd.Action,
			Description: cmd.Description,
			Stamps:      shared.Stamps{CreatedBy: info.Actor(), UpdatedBy: info.Actor()},
		})
		if err != nil {
			return Permission{}, err
		}
		diff := changes.Diff(nil, s.tracker.Snapshot(created))
		if err := s.audit.Record(ctx, tx, audit.Mutation(audit.ActionCreate, audit.EntityPermission, created.ID, info, diff, "")); err != nil {
			return Permission{}, err
		}
		return created, nil
	})
}

// Update renames or redescribes an active permission.
func (s *PermissionService) Update(ctx context.Context, info shared.RequestInfo, cmd PermissionCommand) (Permission, error) {
	cmd = cmd.normalized()
	return db.ExecuteTransaction(ctx, s.uow, "permissions.update", func(ctx context.Context, tx pgx.Tx) (Permission, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, PermPermissionsUpdate); err != nil {
			return Permission{}, err
		}
		if cmd.ID <= 0 {
			return Permission{}, shared.Validation("id is required")
		}
		if err := shared.Validate(cmd); err != nil {
			return Permission{}, err
		}
		before, err := s.repo.GetPermission(ctx, tx, cmd.ID)
		if err != nil {
			return Permission{}, err
		}
		if err := before.EnsureMutable("Permission"); err != nil {
			return Permission{}, err
		}
		next := before
		next.Resource, next.Action, next.Description = cmd.Resource, cmd.Action, cmd.Description
		next.Name = PermissionName(cmd.Resource, cmd.Action)
		next.UpdatedBy = info.Actor()
		after, err := s.repo.UpdatePermission(ctx, tx, next)
		if err != nil {
			return Permission{}, err
		}
		diff := s.tracker.Diff(before, after)
		if err := s.audit.Record(ctx, tx, audit.Mutation(audit.ActionUpdate, audit.EntityPermission, after.ID, info, diff, "")); err != nil {
			return Permission{}, err
		}
		return after, nil
	})
}

// Archive soft-deletes a permission. Archived permissions drop out of every
// effective set.
func (s *PermissionService) Archive(ctx context.Context, info shared.RequestInfo, id int64) (Permission, error) {
	return s.setArchived(ctx, info, id, true)
}

// Restore reactivates an archived permission.
func (s *PermissionService) Restore(ctx context.Context, info shared.RequestInfo, id int64) (Permission, error) {
	return s.setArchived(ctx, info, id, false)
}

func (s *PermissionService) setArchived(ctx context.Context, info shared.RequestInfo, id int64, archive bool) (Permission, error) {
	label, perm, action := "permissions.restore", PermPermissionsRestore, audit.ActionRestore
	if archive {
		label, perm, action = "permissions.archive", PermPermissionsArchive, audit.ActionArchive
	}
	return db.ExecuteTransaction(ctx, s.uow, label, func(ctx context.Context, tx pgx.Tx) (Permission, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, perm); err != nil {
			return Permission{}, err
		}
		if id <= 0 {
			return Permission{}, shared.Validation("id is required")
		}
		before, err := s.repo.GetPermission(ctx, tx, id)
		if err != nil {
			return Permission{}, err
		}
		if archive {
			err = before.EnsureArchivable("Permission")
		} else {
			err = before.EnsureRestorable("Permission")
		}
		if err != nil {
			return Permission{}, err
		}
		after, err := s.repo.SetPermissionArchived(ctx, tx, id, archive, info.Actor())
		if err != nil {
			return Permission{}, err
		}
		if err := s.audit.Record(ctx, tx, audit.Mutation(action, audit.EntityPermission, id, info, s.tracker.Diff(before, after), "")); err != nil {
			return Permission{}, err
		}
		return after, nil
	})
}
