package rbac_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func TestResolverResolveReportsReasonToObserver(t *testing.T) {
	store, ids := seeded()
	store.addRole(2, ids[rbac.PermUsersRead]).addUser(7).assignRoles(7, 2)
	obs := &observer{}
	resolver := rbac.NewResolver(store, nil, obs)
	ctx := context.Background()

	d := resolver.Resolve(ctx, nil, 7, "users:read")
	assert.True(t, d.Allowed)
	assert.Equal(t, rbac.ReasonRoleGrant, d.Reason)

	d = resolver.Resolve(ctx, nil, 7, "users:archive")
	assert.False(t, d.Allowed)
	assert.Equal(t, rbac.ReasonPermissionMissing, d.Reason)

	require.Len(t, obs.decisions, 2)
	assert.Equal(t, observed{"users:archive", false, "permission_missing"}, obs.decisions[1])
}

func TestResolverLookupFailureDenies(t *testing.T) {
	store, _ := seeded()
	store.lookupErr = errors.New("connection reset")
	obs := &observer{}
	resolver := rbac.NewResolver(store, nil, obs)

	d := resolver.Resolve(context.Background(), nil, adminID, "users:read")
	assert.False(t, d.Allowed)
	assert.Equal(t, rbac.ReasonLookupFailed, d.Reason)
	require.Len(t, obs.decisions, 1)
	assert.Equal(t, "lookup_failed", obs.decisions[0].reason)

	_, err := resolver.Effective(context.Background(), nil, adminID)
	assert.ErrorContains(t, err, "connection reset")
}

func TestResolverRequire(t *testing.T) {
	store, _ := seeded()
	store.addUser(7)
	resolver := rbac.NewResolver(store, nil, nil)
	ctx := context.Background()

	assert.NoError(t, resolver.Require(ctx, nil, adminID, rbac.PermRolesCreate))

	err := resolver.Require(ctx, nil, 0, rbac.PermRolesCreate)
	assert.Equal(t, shared.KindUnauthenticated, shared.KindOf(err))

	err = resolver.Require(ctx, nil, 7, rbac.PermRolesCreate)
	assert.Equal(t, shared.KindForbidden, shared.KindOf(err))
	assert.Contains(t, err.Error(), "roles:create")
}

func TestResolverIgnoresArchivedRolesAndPermissions(t *testing.T) {
	store, ids := seeded()
	store.addRole(2, ids[rbac.PermUsersRead], ids[rbac.PermRolesRead]).addUser(7).assignRoles(7, 2)
	resolver := rbac.NewResolver(store, nil, nil)
	ctx := context.Background()

	p := store.state.perms[ids[rbac.PermRolesRead]]
	archivedAt := time.Now()
	p.DeletedAt = &archivedAt
	store.state.perms[p.ID] = p
	assert.False(t, resolver.Resolve(ctx, nil, 7, rbac.PermRolesRead).Allowed)
	assert.True(t, resolver.Resolve(ctx, nil, 7, rbac.PermUsersRead).Allowed)

	store.state.roles[2] = true
	assert.False(t, resolver.Resolve(ctx, nil, 7, rbac.PermUsersRead).Allowed)
}

func TestResolverDeniesInactiveAndArchivedUsers(t *testing.T) {
	store, _ := seeded()
	resolver := rbac.NewResolver(store, nil, nil)
	ctx := context.Background()

	store.state.users[adminID] = memUser{active: false}
	assert.False(t, resolver.Resolve(ctx, nil, adminID, rbac.PermUsersRead).Allowed)

	store.state.users[adminID] = memUser{active: true, archived: true}
	d := resolver.Resolve(ctx, nil, adminID, rbac.PermUsersRead)
	assert.False(t, d.Allowed)
	assert.Equal(t, rbac.ReasonPermissionMissing, d.Reason)

	d = resolver.Resolve(ctx, nil, 999, rbac.PermUsersRead)
	assert.Equal(t, rbac.ReasonPermissionMissing, d.Reason)
}
