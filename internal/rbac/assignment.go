package rbac

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/changes"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// LinkStore persists role, user and override links.
type LinkStore interface {
	LockRole(ctx context.Context, q db.DBTX, roleID int64) (bool, error)
	LockUser(ctx context.Context, q db.DBTX, userID int64) (bool, error)
	UserArchived(ctx context.Context, q db.DBTX, userID int64) (bool, error)
	ActivePermissionIDs(ctx context.Context, q db.DBTX, ids []int64) ([]int64, error)
	ActiveRoleIDs(ctx context.Context, q db.DBTX, ids []int64) ([]int64, error)

	RolePermissionIDs(ctx context.Context, q db.DBTX, roleID int64) ([]int64, error)
	AddRolePermissions(ctx context.Context, q db.DBTX, roleID int64, ids []int64, actor *int64) error
	DeleteRolePermissions(ctx context.Context, q db.DBTX, roleID int64, ids []int64) error

	UserRoleIDs(ctx context.Context, q db.DBTX, userID int64) ([]int64, error)
	AddUserRoles(ctx context.Context, q db.DBTX, userID int64, ids []int64, actor *int64) error
	DeleteUserRoles(ctx context.Context, q db.DBTX, userID int64, ids []int64) error

	OverrideLinks(ctx context.Context, q db.DBTX, userID int64) ([]Override, error)
	UpsertUserOverrides(ctx context.Context, q db.DBTX, userID int64, ids []int64, allowed bool, actor *int64) error
	DeleteUserOverrides(ctx context.Context, q db.DBTX, userID int64, ids []int64, allowed *bool) error
}

// RolePermissionsCommand assigns permissions to a role. With Replace the
// role's existing permission links are removed first.
type RolePermissionsCommand struct {
	RoleID        int64   `json:"role_id" validate:"required,gt=0"`
	PermissionIDs []int64 `json:"permission_ids" validate:"required,min=1,dive,gt=0"`
	Replace       bool    `json:"replace"`
}

// RemoveRolePermissionsCommand removes the listed links, or all when empty.
type RemoveRolePermissionsCommand struct {
	RoleID        int64   `json:"role_id" validate:"required,gt=0"`
	PermissionIDs []int64 `json:"permission_ids" validate:"dive,gt=0"`
}

// UserRolesCommand assigns roles to a user.
type UserRolesCommand struct {
	UserID  int64   `json:"user_id" validate:"required,gt=0"`
	RoleIDs []int64 `json:"role_ids" validate:"required,min=1,dive,gt=0"`
	Replace bool    `json:"replace"`
}

// RemoveUserRolesCommand removes the listed roles, or all when empty.
type RemoveUserRolesCommand struct {
	UserID  int64   `json:"user_id" validate:"required,gt=0"`
	RoleIDs []int64 `json:"role_ids" validate:"dive,gt=0"`
}

// UserOverridesCommand grants or denies permissions for one user. With
// Replace the existing overrides of the same kind are removed first.
type UserOverridesCommand struct {
	UserID        int64   `json:"user_id" validate:"required,gt=0"`
	PermissionIDs []int64 `json:"permission_ids" validate:"required,min=1,dive,gt=0"`
	Replace       bool    `json:"replace"`
}

// RemoveUserOverridesCommand removes the listed overrides, or all when empty.
type RemoveUserOverridesCommand struct {
	UserID        int64   `json:"user_id" validate:"required,gt=0"`
	PermissionIDs []int64 `json:"permission_ids" validate:"dive,gt=0"`
}

// AssignmentService edits role, user and override links.
type AssignmentService struct {
	uow      *db.UnitOfWork
	store    LinkStore
	resolver *Resolver
	audit    audit.Recorder
}

// NewAssignmentService builds an AssignmentService.
func NewAssignmentService(uow *db.UnitOfWork, store LinkStore, resolver *Resolver, recorder audit.Recorder) *AssignmentService {
	return &AssignmentService{uow: uow, store: store, resolver: resolver, audit: recorder}
}

// AssignPermissionsToRole links permissions to a role.
func (s *AssignmentService) AssignPermissionsToRole(ctx context.Context, info shared.RequestInfo, cmd RolePermissionsCommand) (LinkResult, error) {
	cmd.PermissionIDs = uniqueIDs(cmd.PermissionIDs)
	return db.ExecuteTransaction(ctx, s.uow, "roles.assign_permissions", func(ctx context.Context, tx pgx.Tx) (LinkResult, error) {
		if err := s.prepare(ctx, tx, info, PermRolesAssignPerms, cmd); err != nil {
			return LinkResult{}, err
		}
		if err := s.lockRole(ctx, tx, cmd.RoleID); err != nil {
			return LinkResult{}, err
		}
		if err := s.ensureActive(ctx, tx, s.store.ActivePermissionIDs, cmd.PermissionIDs, "Permission"); err != nil {
			return LinkResult{}, err
		}
		before, err := s.store.RolePermissionIDs(ctx, tx, cmd.RoleID)
		if err != nil {
			return LinkResult{}, err
		}
		if cmd.Replace {
			if err := s.store.DeleteRolePermissions(ctx, tx, cmd.RoleID, nil); err != nil {
				return LinkResult{}, err
			}
		}
		if err := s.store.AddRolePermissions(ctx, tx, cmd.RoleID, cmd.PermissionIDs, info.Actor()); err != nil {
			return LinkResult{}, err
		}
		return s.finishLinks(ctx, tx, info, audit.ActionAssignPermissions, audit.EntityRole, cmd.RoleID, "permission_ids", before, s.store.RolePermissionIDs, replaceNote(cmd.Replace))
	})
}

// RemovePermissionsFromRole unlinks permissions from a role.
func (s *AssignmentService) RemovePermissionsFromRole(ctx context.Context, info shared.RequestInfo, cmd RemoveRolePermissionsCommand) (LinkResult, error) {
	cmd.PermissionIDs = uniqueIDs(cmd.PermissionIDs)
	return db.ExecuteTransaction(ctx, s.uow, "roles.remove_permissions", func(ctx context.Context, tx pgx.Tx) (LinkResult, error) {
		if err := s.prepare(ctx, tx, info, PermRolesAssignPerms, cmd); err != nil {
			return LinkResult{}, err
		}
		if err := s.lockRole(ctx, tx, cmd.RoleID); err != nil {
			return LinkResult{}, err
		}
		before, err := s.store.RolePermissionIDs(ctx, tx, cmd.RoleID)
		if err != nil {
			return LinkResult{}, err
		}
		if err := s.store.DeleteRolePermissions(ctx, tx, cmd.RoleID, cmd.PermissionIDs); err != nil {
			return LinkResult{}, err
		}
		return s.finishLinks(ctx, tx, info, audit.ActionRemovePermissions, audit.EntityRole, cmd.RoleID, "permission_ids", before, s.store.RolePermissionIDs, removeNote(cmd.PermissionIDs))
	})
}

// AssignRolesToUser links roles to a user.
func (s *AssignmentService) AssignRolesToUser(ctx context.Context, info shared.RequestInfo, cmd UserRolesCommand) (LinkResult, error) {
	cmd.RoleIDs = uniqueIDs(cmd.RoleIDs)
	return db.ExecuteTransaction(ctx, s.uow, "users.assign_roles", func(ctx context.Context, tx pgx.Tx) (LinkResult, error) {
		if err := s.prepare(ctx, tx, info, PermUsersAssignRoles, cmd); err != nil {
			return LinkResult{}, err
		}
		if err := s.lockUser(ctx, tx, cmd.UserID); err != nil {
			return LinkResult{}, err
		}
		if err := s.ensureActive(ctx, tx, s.store.ActiveRoleIDs, cmd.RoleIDs, "Role"); err != nil {
			return LinkResult{}, err
		}
		before, err := s.store.UserRoleIDs(ctx, tx, cmd.UserID)
		if err != nil {
			return LinkResult{}, err
		}
		if cmd.Replace {
			if err := s.store.DeleteUserRoles(ctx, tx, cmd.UserID, nil); err != nil {
				return LinkResult{}, err
			}
		}
		if err := s.store.AddUserRoles(ctx, tx, cmd.UserID, cmd.RoleIDs, info.Actor()); err != nil {
			return LinkResult{}, err
		}
		return s.finishLinks(ctx, tx, info, audit.ActionAssignRoles, audit.EntityUser, cmd.UserID, "role_ids", before, s.store.UserRoleIDs, replaceNote(cmd.Replace))
	})
}

// RemoveRolesFromUser unlinks roles from a user.
func (s *AssignmentService) RemoveRolesFromUser(ctx context.Context, info shared.RequestInfo, cmd RemoveUserRolesCommand) (LinkResult, error) {
	cmd.RoleIDs = uniqueIDs(cmd.RoleIDs)
	return db.ExecuteTransaction(ctx, s.uow, "users.remove_roles", func(ctx context.Context, tx pgx.Tx) (LinkResult, error) {
		if err := s.prepare(ctx, tx, info, PermUsersAssignRoles, cmd); err != nil {
			return LinkResult{}, err
		}
		if err := s.lockUser(ctx, tx, cmd.UserID); err != nil {
			return LinkResult{}, err
		}
		before, err := s.store.UserRoleIDs(ctx, tx, cmd.UserID)
		if err != nil {
			return LinkResult{}, err
		}
		if err := s.store.DeleteUserRoles(ctx, tx, cmd.UserID, cmd.RoleIDs); err != nil {
			return LinkResult{}, err
		}
		return s.finishLinks(ctx, tx, info, audit.ActionRemoveRoles, audit.EntityUser, cmd.UserID, "role_ids", before, s.store.UserRoleIDs, removeNote(cmd.RoleIDs))
	})
}

// GrantPermissionsToUser writes grant overrides. A deny on the same
// permission is flipped to a grant.
func (s *AssignmentService) GrantPermissionsToUser(ctx context.Context, info shared.RequestInfo, cmd UserOverridesCommand) (OverrideResult, error) {
	return s.writeOverrides(ctx, info, cmd, true)
}

// DenyPermissionsToUser writes deny overrides. A grant on the same permission
// is flipped to a deny.
func (s *AssignmentService) DenyPermissionsToUser(ctx context.Context, info shared.RequestInfo, cmd UserOverridesCommand) (OverrideResult, error) {
	return s.writeOverrides(ctx, info, cmd, false)
}

func (s *AssignmentService) writeOverrides(ctx context.Context, info shared.RequestInfo, cmd UserOverridesCommand, allowed bool) (OverrideResult, error) {
	cmd.PermissionIDs = uniqueIDs(cmd.PermissionIDs)
	label, action := "users.deny_permissions", audit.ActionDenyPermissions
	if allowed {
		label, action = "users.grant_permissions", audit.ActionGrantPermissions
	}
	return db.ExecuteTransaction(ctx, s.uow, label, func(ctx context.Context, tx pgx.Tx) (OverrideResult, error) {
		if err := s.prepare(ctx, tx, info, PermUsersManagePerms, cmd); err != nil {
			return OverrideResult{}, err
		}
		if err := s.lockUser(ctx, tx, cmd.UserID); err != nil {
			return OverrideResult{}, err
		}
		if err := s.ensureActive(ctx, tx, s.store.ActivePermissionIDs, cmd.PermissionIDs, "Permission"); err != nil {
			return OverrideResult{}, err
		}
		before, err := s.overrideSnapshot(ctx, tx, cmd.UserID)
		if err != nil {
			return OverrideResult{}, err
		}
		if cmd.Replace {
			kind := allowed
			if err := s.store.DeleteUserOverrides(ctx, tx, cmd.UserID, nil, &kind); err != nil {
				return OverrideResult{}, err
			}
		}
		if err := s.store.UpsertUserOverrides(ctx, tx, cmd.UserID, cmd.PermissionIDs, allowed, info.Actor()); err != nil {
			return OverrideResult{}, err
		}
		return s.finishOverrides(ctx, tx, info, action, cmd.UserID, before, replaceNote(cmd.Replace))
	})
}

// RemovePermissionsFromUser deletes overrides of either kind.
func (s *AssignmentService) RemovePermissionsFromUser(ctx context.Context, info shared.RequestInfo, cmd RemoveUserOverridesCommand) (OverrideResult, error) {
	cmd.PermissionIDs = uniqueIDs(cmd.PermissionIDs)
	return db.ExecuteTransaction(ctx, s.uow, "users.remove_permissions", func(ctx context.Context, tx pgx.Tx) (OverrideResult, error) {
		if err := s.prepare(ctx, tx, info, PermUsersManagePerms, cmd); err != nil {
			return OverrideResult{}, err
		}
		if err := s.lockUser(ctx, tx, cmd.UserID); err != nil {
			return OverrideResult{}, err
		}
		before, err := s.overrideSnapshot(ctx, tx, cmd.UserID)
		if err != nil {
			return OverrideResult{}, err
		}
		if err := s.store.DeleteUserOverrides(ctx, tx, cmd.UserID, cmd.PermissionIDs, nil); err != nil {
			return OverrideResult{}, err
		}
		return s.finishOverrides(ctx, tx, info, audit.ActionRemoveOverrides, cmd.UserID, before, removeNote(cmd.PermissionIDs))
	})
}

// Effective returns the effective permissions of userID.
func (s *AssignmentService) Effective(ctx context.Context, info shared.RequestInfo, userID int64) (EffectiveView, error) {
	return db.ExecuteTransaction(ctx, s.uow, "users.effective_permissions", func(ctx context.Context, tx pgx.Tx) (EffectiveView, error) {
		if err := s.resolver.Require(ctx, tx, info.ActorID, PermUsersRead); err != nil {
			return EffectiveView{}, err
		}
		if _, err := s.store.UserArchived(ctx, tx, userID); err != nil {
			return EffectiveView{}, err
		}
		set, err := s.resolver.Effective(ctx, tx, userID)
		if err != nil {
			return EffectiveView{}, err
		}
		return EffectiveView{UserID: userID, Permissions: set.Permissions(), Denied: set.Denied()}, nil
	})
}

// Check resolves permission for the caller.
func (s *AssignmentService) Check(ctx context.Context, info shared.RequestInfo, permission string) (Decision, error) {
	if info.ActorID <= 0 {
		return Decision{}, shared.Unauthenticated()
	}
	if _, _, ok := ParsePermission(permission); !ok {
		return Decision{}, shared.Validation("permission must look like resource:action")
	}
	return db.ExecuteTransaction(ctx, s.uow, "authz.check", func(ctx context.Context, tx pgx.Tx) (Decision, error) {
		return s.resolver.Resolve(ctx, tx, info.ActorID, permission), nil
	})
}

func (s *AssignmentService) prepare(ctx context.Context, tx pgx.Tx, info shared.RequestInfo, permission string, cmd any) error {
	if err := s.resolver.Require(ctx, tx, info.ActorID, permission); err != nil {
		return err
	}
	return shared.Validate(cmd)
}

func (s *AssignmentService) lockRole(ctx context.Context, tx pgx.Tx, roleID int64) error {
	archived, err := s.store.LockRole(ctx, tx, roleID)
	if err != nil {
		return err
	}
	if archived {
		return shared.ArchivedReadOnly("Role")
	}
	return nil
}

func (s *AssignmentService) lockUser(ctx context.Context, tx pgx.Tx, userID int64) error {
	archived, err := s.store.LockUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if archived {
		return shared.ArchivedReadOnly("User")
	}
	return nil
}

type idLookup func(ctx context.Context, q db.DBTX, ids []int64) ([]int64, error)

func (s *AssignmentService) ensureActive(ctx context.Context, tx pgx.Tx, lookup idLookup, ids []int64, entity string) error {
	found, err := lookup(ctx, tx, ids)
	if err != nil {
		return err
	}
	if len(found) != len(ids) {
		return shared.NotFound(entity)
	}
	return nil
}

type ownerLinks func(ctx context.Context, q db.DBTX, ownerID int64) ([]int64, error)

func (s *AssignmentService) finishLinks(ctx context.Context, tx pgx.Tx, info shared.RequestInfo, action, entity string, ownerID int64, field string, before []int64, reload ownerLinks, note string) (LinkResult, error) {
	after, err := reload(ctx, tx, ownerID)
	if err != nil {
		return LinkResult{}, err
	}
	diff := changes.Diff(
		changes.Snapshot{field: changes.SortedIDs(before)},
		changes.Snapshot{field: changes.SortedIDs(after)},
	)
	if err := s.audit.Record(ctx, tx, audit.Mutation(action, entity, ownerID, info, diff, note)); err != nil {
		return LinkResult{}, err
	}
	return LinkResult{OwnerID: ownerID, IDs: changes.SortedIDs(after).([]int64)}, nil
}

func (s *AssignmentService) overrideSnapshot(ctx context.Context, tx pgx.Tx, userID int64) (OverrideResult, error) {
	links, err := s.store.OverrideLinks(ctx, tx, userID)
	if err != nil {
		return OverrideResult{}, err
	}
	res := OverrideResult{UserID: userID, Granted: []int64{}, Denied: []int64{}}
	for _, o := range links {
		if o.Allowed {
			res.Granted = append(res.Granted, o.PermissionID)
		} else {
			res.Denied = append(res.Denied, o.PermissionID)
		}
	}
	sortIDs(res.Granted)
	sortIDs(res.Denied)
	return res, nil
}

func (s *AssignmentService) finishOverrides(ctx context.Context, tx pgx.Tx, info shared.RequestInfo, action string, userID int64, before OverrideResult, note string) (OverrideResult, error) {
	after, err := s.overrideSnapshot(ctx, tx, userID)
	if err != nil {
		return OverrideResult{}, err
	}
	diff := changes.Diff(
		changes.Snapshot{"granted_permission_ids": before.Granted, "denied_permission_ids": before.Denied},
		changes.Snapshot{"granted_permission_ids": after.Granted, "denied_permission_ids": after.Denied},
	)
	if err := s.audit.Record(ctx, tx, audit.Mutation(action, audit.EntityUser, userID, info, diff, note)); err != nil {
		return OverrideResult{}, err
	}
	return after, nil
}

func replaceNote(replace bool) string {
	if replace {
		return "replaced existing links"
	}
	return ""
}

func removeNote(ids []int64) string {
	if len(ids) == 0 {
		return "removed all links"
	}
	return ""
}

func uniqueIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
