package roles_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/changes"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/platform/db/dbtest"
	"github.com/odyssey-erp/backoffice/internal/roles"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type fakeRepo struct {
	mu    sync.Mutex
	roles map[int64]roles.Role
	next  int64
}

func newFakeRepo(seed ...roles.Role) *fakeRepo {
	repo := &fakeRepo{roles: map[int64]roles.Role{}, next: 100}
	for _, r := range seed {
		repo.roles[r.ID] = r
	}
	return repo
}

// track restores the current state when the transaction behind q rolls back.
func (f *fakeRepo) track(q db.DBTX) {
	tx, ok := q.(*dbtest.Tx)
	if !ok {
		return
	}
	snapshot := make(map[int64]roles.Role, len(f.roles))
	for k, v := range f.roles {
		snapshot[k] = v
	}
	tx.OnRollback(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.roles = snapshot
	})
}

func (f *fakeRepo) unique(name string, except int64) error {
	for id, r := range f.roles {
		if id != except && r.Name == name {
			return &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "uq_roles_name", Message: "duplicate key value violates unique constraint"}
		}
	}
	return nil
}

func (f *fakeRepo) GetRole(_ context.Context, _ db.DBTX, id int64) (roles.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roles[id]
	if !ok {
		return roles.Role{}, shared.NotFound("Role")
	}
	return r, nil
}

func (f *fakeRepo) ListRoles(_ context.Context, _ db.DBTX, filters shared.ListFilters) ([]roles.Role, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []roles.Role
	for _, r := range f.roles {
		if r.IsArchived() == filters.Archived {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (f *fakeRepo) RoleOptions(context.Context, db.DBTX, string) ([]shared.Option, error) {
	return nil, nil
}

func (f *fakeRepo) RolePermissions(context.Context, db.DBTX, int64) ([]shared.Option, error) {
	return []shared.Option{{ID: 9, Name: "users:read"}}, nil
}

func (f *fakeRepo) CreateRole(_ context.Context, q db.DBTX, r roles.Role) (roles.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unique(r.Name, 0); err != nil {
		return roles.Role{}, err
	}
	f.track(q)
	f.next++
	r.ID = f.next
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	f.roles[r.ID] = r
	return r, nil
}

func (f *fakeRepo) UpdateRole(_ context.Context, q db.DBTX, r roles.Role) (roles.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unique(r.Name, r.ID); err != nil {
		return roles.Role{}, err
	}
	f.track(q)
	r.UpdatedAt = time.Now()
	f.roles[r.ID] = r
	return r, nil
}

func (f *fakeRepo) SetRoleArchived(_ context.Context, q db.DBTX, id int64, archive bool, actor *int64) (roles.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.track(q)
	r := f.roles[id]
	if archive {
		now := time.Now()
		r.DeletedAt, r.DeletedBy = &now, actor
	} else {
		r.DeletedAt, r.DeletedBy = nil, nil
	}
	f.roles[id] = r
	return r, nil
}

type allowAll struct{ denied map[string]bool }

func (a allowAll) Require(_ context.Context, _ db.DBTX, actorID int64, permission string) error {
	if actorID <= 0 {
		return shared.Unauthenticated()
	}
	if a.denied[permission] {
		return shared.Forbidden(permission)
	}
	return nil
}

type recorder struct {
	err     error
	entries []audit.Entry
}

func (r *recorder) Record(_ context.Context, _ db.DBTX, e audit.Entry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

var info = shared.RequestInfo{ActorID: 1, ActorUsername: "admin"}

func archivedRole(id int64, name string) roles.Role {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	actor := int64(1)
	return roles.Role{ID: id, Name: name, Stamps: shared.Stamps{DeletedAt: &at, DeletedBy: &actor}}
}

func newService(repo *fakeRepo, rec *recorder) (*roles.Service, *dbtest.Acquirer) {
	uow, acq := dbtest.NewUnitOfWork()
	return roles.NewService(uow, repo, allowAll{}, rec, time.UTC), acq
}

func TestArchiveAlreadyArchivedRole(t *testing.T) {
	repo := newFakeRepo(archivedRole(5, "Legacy"))
	rec := &recorder{}
	svc, acq := newService(repo, rec)

	_, err := svc.Archive(context.Background(), info, 5)
	require.Error(t, err)
	assert.EqualError(t, err, "Role is already archived")
	assert.ErrorIs(t, err, shared.ErrAlreadyArchived)
	assert.Equal(t, 409, shared.KindOf(err).Status())
	assert.Empty(t, rec.entries)
	assert.True(t, acq.Last().Tx.RolledBack())
}

func TestUpdateNameCollisionMapsToUniqueViolation(t *testing.T) {
	repo := newFakeRepo(roles.Role{ID: 5, Name: "Editor"}, roles.Role{ID: 6, Name: "Viewer"})
	rec := &recorder{}
	svc, _ := newService(repo, rec)

	_, err := svc.Update(context.Background(), info, roles.RoleCommand{ID: 5, Name: "Viewer"})
	require.Error(t, err)
	assert.Equal(t, shared.KindUniqueViolation, shared.KindOf(err))
	assert.Equal(t, 409, shared.KindOf(err).Status())
	assert.Equal(t, "duplicate value violates unique constraint (uq_roles_name)", shared.UserSafeMessage(err))
	assert.Equal(t, "Editor", repo.roles[5].Name)
}

func TestArchiveRollsBackWhenAuditFails(t *testing.T) {
	repo := newFakeRepo(roles.Role{ID: 5, Name: "Editor"})
	svc, acq := newService(repo, &recorder{err: errors.New("activitylogs unavailable")})

	_, err := svc.Archive(context.Background(), info, 5)
	require.Error(t, err)

	got, err := repo.GetRole(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.False(t, got.IsArchived())
	assert.False(t, acq.Last().Tx.Committed())
}

func TestArchiveAndRestoreAreAudited(t *testing.T) {
	repo := newFakeRepo(roles.Role{ID: 5, Name: "Editor"})
	rec := &recorder{}
	svc, _ := newService(repo, rec)
	ctx := context.Background()

	archived, err := svc.Archive(ctx, info, 5)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived())

	_, err = svc.Update(ctx, info, roles.RoleCommand{ID: 5, Name: "Editor 2"})
	assert.EqualError(t, err, "Role is archived and cannot be modified")

	_, err = svc.Restore(ctx, info, 5)
	require.NoError(t, err)
	_, err = svc.Restore(ctx, info, 5)
	assert.EqualError(t, err, "Role is not archived")

	require.Len(t, rec.entries, 2)
	assert.Equal(t, audit.ActionArchive, rec.entries[0].Action)
	assert.Equal(t, audit.ActionRestore, rec.entries[1].Action)
	assert.Equal(t, []string{"deleted_at"}, rec.entries[0].Details.(audit.Details).Changes.Fields())
	assert.Equal(t, audit.EntityRole, rec.entries[1].Entity)
}

func TestCreateAndUpdateRecordChanges(t *testing.T) {
	repo := newFakeRepo()
	rec := &recorder{}
	svc, _ := newService(repo, rec)
	ctx := context.Background()

	created, err := svc.Create(ctx, info, roles.RoleCommand{Name: "  Auditor ", Description: "read only"})
	require.NoError(t, err)
	assert.Equal(t, "Auditor", created.Name)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, int64(1), *created.CreatedBy)

	_, err = svc.Update(ctx, info, roles.RoleCommand{ID: created.ID, Name: "Auditor", Description: "reads everything"})
	require.NoError(t, err)

	require.Len(t, rec.entries, 2)
	diff := rec.entries[1].Details.(audit.Details).Changes
	assert.Equal(t, changes.Changes{"description": {Old: "read only", New: "reads everything"}}, diff)
}

func TestCreateValidatesAfterAuthorization(t *testing.T) {
	repo := newFakeRepo()
	uow, _ := dbtest.NewUnitOfWork()
	svc := roles.NewService(uow, repo, allowAll{denied: map[string]bool{"roles:create": true}}, &recorder{}, nil)

	_, err := svc.Create(context.Background(), info, roles.RoleCommand{Name: ""})
	assert.Equal(t, shared.KindForbidden, shared.KindOf(err))

	svc, _ = newService(repo, &recorder{})
	_, err = svc.Create(context.Background(), info, roles.RoleCommand{Name: "x"})
	var appErr *shared.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, shared.KindValidation, appErr.Kind)
	assert.Contains(t, appErr.Fields, "name")
}

func TestGetIncludesPermissions(t *testing.T) {
	repo := newFakeRepo(roles.Role{ID: 5, Name: "Editor"})
	svc, _ := newService(repo, &recorder{})

	role, err := svc.Get(context.Background(), info, 5)
	require.NoError(t, err)
	assert.Equal(t, []shared.Option{{ID: 9, Name: "users:read"}}, role.Permissions)

	_, err = svc.Get(context.Background(), info, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
