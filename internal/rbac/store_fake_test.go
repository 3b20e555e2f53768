package rbac_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/platform/db/dbtest"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memUser struct {
	archived bool
	active   bool
}

type memState struct {
	users     map[int64]memUser
	roles     map[int64]bool // id -> archived
	perms     map[int64]rbac.Permission
	rolePerms map[int64]map[int64]bool
	userRoles map[int64]map[int64]bool
	overrides map[int64]map[int64]bool
}

func (s memState) clone() memState {
	out := memState{
		users:     map[int64]memUser{},
		roles:     map[int64]bool{},
		perms:     map[int64]rbac.Permission{},
		rolePerms: cloneLinks(s.rolePerms),
		userRoles: cloneLinks(s.userRoles),
		overrides: cloneLinks(s.overrides),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.roles {
		out.roles[k] = v
	}
	for k, v := range s.perms {
		out.perms[k] = v
	}
	return out
}

func cloneLinks(in map[int64]map[int64]bool) map[int64]map[int64]bool {
	out := make(map[int64]map[int64]bool, len(in))
	for owner, links := range in {
		cp := make(map[int64]bool, len(links))
		for k, v := range links {
			cp[k] = v
		}
		out[owner] = cp
	}
	return out
}

// memStore is an in-memory rbac store. Writes inside a dbtest.Tx are undone
// when that transaction rolls back.
type memStore struct {
	mu        sync.Mutex
	state     memState
	tracked   map[*dbtest.Tx]bool
	lookupErr error
	nextPerm  int64
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			users:     map[int64]memUser{},
			roles:     map[int64]bool{},
			perms:     map[int64]rbac.Permission{},
			rolePerms: map[int64]map[int64]bool{},
			userRoles: map[int64]map[int64]bool{},
			overrides: map[int64]map[int64]bool{},
		},
		tracked:  map[*dbtest.Tx]bool{},
		nextPerm: 100,
	}
}

func (m *memStore) addUser(id int64) *memStore {
	m.state.users[id] = memUser{active: true}
	return m
}

func (m *memStore) addRole(id int64, permIDs ...int64) *memStore {
	m.state.roles[id] = false
	if m.state.rolePerms[id] == nil {
		m.state.rolePerms[id] = map[int64]bool{}
	}
	for _, p := range permIDs {
		m.state.rolePerms[id][p] = true
	}
	return m
}

func (m *memStore) addPerm(id int64, name string) *memStore {
	resource, action, _ := rbac.ParsePermission(name)
	m.state.perms[id] = rbac.Permission{ID: id, Name: name, Resource: resource, Action: action}
	return m
}

func (m *memStore) link(links map[int64]map[int64]bool, owner int64, ids ...int64) {
	if links[owner] == nil {
		links[owner] = map[int64]bool{}
	}
	for _, id := range ids {
		links[owner][id] = true
	}
}

func (m *memStore) assignRoles(userID int64, roleIDs ...int64) *memStore {
	m.link(m.state.userRoles, userID, roleIDs...)
	return m
}

func (m *memStore) setOverride(userID, permID int64, allowed bool) *memStore {
	if m.state.overrides[userID] == nil {
		m.state.overrides[userID] = map[int64]bool{}
	}
	m.state.overrides[userID][permID] = allowed
	return m
}

// write registers the rollback hook the first time q writes.
func (m *memStore) write(q db.DBTX) {
	tx, ok := q.(*dbtest.Tx)
	if !ok || m.tracked[tx] {
		return
	}
	m.tracked[tx] = true
	snapshot := m.state.clone()
	tx.OnRollback(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.state = snapshot
	})
}

func (m *memStore) userActive(id int64) bool {
	u, ok := m.state.users[id]
	return ok && u.active && !u.archived
}

func (m *memStore) RolePermissionNames(_ context.Context, _ db.DBTX, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if !m.userActive(userID) {
		return nil, nil
	}
	seen := map[string]bool{}
	var names []string
	for roleID := range m.state.userRoles[userID] {
		if archived, ok := m.state.roles[roleID]; !ok || archived {
			continue
		}
		for permID := range m.state.rolePerms[roleID] {
			p, ok := m.state.perms[permID]
			if !ok || p.IsArchived() || seen[p.Name] {
				continue
			}
			seen[p.Name] = true
			names = append(names, p.Name)
		}
	}
	return names, nil
}

func (m *memStore) UserOverrides(_ context.Context, _ db.DBTX, userID int64) ([]rbac.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if !m.userActive(userID) {
		return nil, nil
	}
	var out []rbac.Override
	for permID, allowed := range m.state.overrides[userID] {
		p, ok := m.state.perms[permID]
		if !ok || p.IsArchived() {
			continue
		}
		out = append(out, rbac.Override{PermissionID: permID, Permission: p.Name, Allowed: allowed})
	}
	return out, nil
}

func (m *memStore) OverrideLinks(_ context.Context, _ db.DBTX, userID int64) ([]rbac.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rbac.Override
	for permID, allowed := range m.state.overrides[userID] {
		out = append(out, rbac.Override{PermissionID: permID, Permission: m.state.perms[permID].Name, Allowed: allowed})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionID < out[j].PermissionID })
	return out, nil
}

func (m *memStore) LockRole(_ context.Context, _ db.DBTX, roleID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	archived, ok := m.state.roles[roleID]
	if !ok {
		return false, shared.NotFound("Role")
	}
	return archived, nil
}

func (m *memStore) LockUser(ctx context.Context, q db.DBTX, userID int64) (bool, error) {
	return m.UserArchived(ctx, q, userID)
}

func (m *memStore) UserArchived(_ context.Context, _ db.DBTX, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[userID]
	if !ok {
		return false, shared.NotFound("User")
	}
	return u.archived, nil
}

func (m *memStore) ActivePermissionIDs(_ context.Context, _ db.DBTX, ids []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for _, id := range ids {
		if p, ok := m.state.perms[id]; ok && !p.IsArchived() {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memStore) ActiveRoleIDs(_ context.Context, _ db.DBTX, ids []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for _, id := range ids {
		if archived, ok := m.state.roles[id]; ok && !archived {
			out = append(out, id)
		}
	}
	return out, nil
}

func sortedKeys(links map[int64]bool) []int64 {
	out := []int64{}
	for id := range links {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *memStore) RolePermissionIDs(_ context.Context, _ db.DBTX, roleID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.state.rolePerms[roleID]), nil
}

func (m *memStore) UserRoleIDs(_ context.Context, _ db.DBTX, userID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.state.userRoles[userID]), nil
}

func (m *memStore) AddRolePermissions(_ context.Context, q db.DBTX, roleID int64, ids []int64, _ *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(q)
	m.link(m.state.rolePerms, roleID, ids...)
	return nil
}

func (m *memStore) DeleteRolePermissions(_ context.Context, q db.DBTX, roleID int64, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(q)
	unlink(m.state.rolePerms, roleID, ids)
	return nil
}

func (m *memStore) AddUserRoles(_ context.Context, q db.DBTX, userID int64, ids []int64, _ *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(q)
	m.link(m.state.userRoles, userID, ids...)
	return nil
}

func (m *memStore) DeleteUserRoles(_ context.Context, q db.DBTX, userID int64, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(q)
	unlink(m.state.userRoles, userID, ids)
	return nil
}

func unlink(links map[int64]map[int64]bool, owner int64, ids []int64) {
	if len(ids) == 0 {
		delete(links, owner)
		return
	}
	for _, id := range ids {
		delete(links[owner], id)
	}
}

func (m *memStore) UpsertUserOverrides(_ context.Context, q db.DBTX, userID int64, ids []int64, allowed bool, _ *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(q)
	if m.state.overrides[userID] == nil {
		m.state.overrides[userID] = map[int64]bool{}
	}
	for _, id := range ids {
		m.state.overrides[userID][id] = allowed
	}
	return nil
}

func (m *memStore) DeleteUserOverrides(_ context.Context, q db.DBTX, userID int64, ids []int64, allowed *bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(q)
	wanted := map[int64]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	for permID, isAllowed := range m.state.overrides[userID] {
		if len(ids) > 0 && !wanted[permID] {
			continue
		}
		if allowed != nil && *allowed != isAllowed {
			continue
		}
		delete(m.state.overrides[userID], permID)
	}
	return nil
}

func (m *memStore) GetPermission(_ context.Context, _ db.DBTX, id int64) (rbac.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.perms[id]
	if !ok {
		return rbac.Permission{}, shared.NotFound("Permission")
	}
	return p, nil
}

func (m *memStore) ListPermissions(_ context.Context, _ db.DBTX, filters shared.ListFilters) ([]rbac.Permission, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rbac.Permission
	for _, p := range m.state.perms {
		if p.IsArchived() != filters.Archived {
			continue
		}
		if filters.Search != "" && !strings.Contains(p.Name, strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	start := filters.Offset()
	if start > total {
		start = total
	}
	end := start + filters.Limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (m *memStore) PermissionOptions(_ context.Context, _ db.DBTX, _ string) ([]shared.Option, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []shared.Option
	for _, p := range m.state.perms {
		if !p.IsArchived() {
			out = append(out, shared.Option{ID: p.ID, Name: p.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) uniqueName(name string, except int64) error {
	for id, p := range m.state.perms {
		if id != except && p.Name == name {
			return &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "uq_permissions_name"}
		}
	}
	return nil
}

func (m *memStore) CreatePermission(_ context.Context, q db.DBTX, p rbac.Permission) (rbac.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.uniqueName(p.Name, 0); err != nil {
		return rbac.Permission{}, err
	}
	m.write(q)
	m.nextPerm++
	p.ID = m.nextPerm
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.state.perms[p.ID] = p
	return p, nil
}

func (m *memStore) UpdatePermission(_ context.Context, q db.DBTX, p rbac.Permission) (rbac.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.uniqueName(p.Name, p.ID); err != nil {
		return rbac.Permission{}, err
	}
	m.write(q)
	p.UpdatedAt = time.Now()
	m.state.perms[p.ID] = p
	return p, nil
}

func (m *memStore) SetPermissionArchived(_ context.Context, q db.DBTX, id int64, archive bool, actor *int64) (rbac.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(q)
	p := m.state.perms[id]
	if archive {
		now := time.Now()
		p.DeletedAt, p.DeletedBy = &now, actor
	} else {
		p.DeletedAt, p.DeletedBy = nil, nil
	}
	m.state.perms[id] = p
	return p, nil
}

var (
	_ rbac.GrantSource          = (*memStore)(nil)
	_ rbac.LinkStore            = (*memStore)(nil)
	_ rbac.PermissionRepository = (*memStore)(nil)
)
