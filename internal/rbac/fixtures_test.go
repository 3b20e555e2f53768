package rbac_test

import (
	"context"
	"sync"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/platform/db/dbtest"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	adminID     int64 = 1
	adminRoleID int64 = 1
)

type recorder struct {
	mu      sync.Mutex
	err     error
	entries []audit.Entry
}

func (r *recorder) Record(_ context.Context, _ db.DBTX, entry audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recorder) all() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}

type observed struct {
	permission string
	allowed    bool
	reason     string
}

type observer struct {
	mu        sync.Mutex
	decisions []observed
}

func (o *observer) ObserveDecision(permission string, allowed bool, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, observed{permission, allowed, reason})
}

// seeded returns a store holding the full catalog (ids from 1) and an admin
// user whose role carries all of it.
func seeded() (*memStore, map[string]int64) {
	m := newMemStore()
	ids := map[string]int64{}
	var all []int64
	for i, entry := range rbac.Catalog() {
		id := int64(i + 1)
		m.addPerm(id, entry.Name())
		ids[entry.Name()] = id
		all = append(all, id)
	}
	m.addRole(adminRoleID, all...)
	m.addUser(adminID).assignRoles(adminID, adminRoleID)
	return m, ids
}

type harness struct {
	store    *memStore
	ids      map[string]int64
	audit    *recorder
	acq      *dbtest.Acquirer
	resolver *rbac.Resolver
	assign   *rbac.AssignmentService
	perms    *rbac.PermissionService
}

func newHarness() *harness {
	store, ids := seeded()
	uow, acq := dbtest.NewUnitOfWork()
	rec := &recorder{}
	resolver := rbac.NewResolver(store, nil, nil)
	return &harness{
		store:    store,
		ids:      ids,
		audit:    rec,
		acq:      acq,
		resolver: resolver,
		assign:   rbac.NewAssignmentService(uow, store, resolver, rec),
		perms:    rbac.NewPermissionService(uow, store, resolver, rec, nil),
	}
}

func asAdmin() shared.RequestInfo {
	return shared.RequestInfo{ActorID: adminID, ActorUsername: "admin", RequestID: "req-1"}
}

func (h *harness) has(userID int64, permission string) bool {
	set, err := h.resolver.Effective(context.Background(), nil, userID)
	if err != nil {
		return false
	}
	return set.Has(permission)
}
