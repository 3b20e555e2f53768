package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// MaxExportRows membatasi jumlah baris ekspor CSV.
const MaxExportRows = 10000

// Repository menyediakan akses baca ke tabel activitylogs.
type Repository interface {
	List(ctx context.Context, q db.DBTX, filter Filter) ([]ActivityLog, int, error)
}

// Authorizer memeriksa izin aktor di dalam transaksi.
type Authorizer interface {
	Require(ctx context.Context, q db.DBTX, actorID int64, permission string) error
}

// Service mengoordinasikan pembacaan activity log.
type Service struct {
	uow   *db.UnitOfWork
	repo  Repository
	authz Authorizer
}

// NewService membuat service audit baru.
func NewService(uow *db.UnitOfWork, repo Repository, authz Authorizer) *Service {
	return &Service{uow: uow, repo: repo, authz: authz}
}

// FindAll mengambil activity log terbaru dengan paging.
func (s *Service) FindAll(ctx context.Context, info shared.RequestInfo, filters shared.ListFilters) (shared.Page[ActivityLog], error) {
	return s.find(ctx, info, Filter{ListFilters: filters})
}

// FindByEntity mengambil activity log untuk satu entity.
func (s *Service) FindByEntity(ctx context.Context, info shared.RequestInfo, entity string, filters shared.ListFilters) (shared.Page[ActivityLog], error) {
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return shared.Page[ActivityLog]{}, shared.Validation("entity is required")
	}
	return s.find(ctx, info, Filter{Entity: entity, ListFilters: filters})
}

// FindByAction mengambil activity log untuk satu action.
func (s *Service) FindByAction(ctx context.Context, info shared.RequestInfo, action string, filters shared.ListFilters) (shared.Page[ActivityLog], error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return shared.Page[ActivityLog]{}, shared.Validation("action is required")
	}
	return s.find(ctx, info, Filter{Action: action, ListFilters: filters})
}

// Find mengambil activity log dengan filter entity dan action sekaligus.
func (s *Service) Find(ctx context.Context, info shared.RequestInfo, filter Filter) (shared.Page[ActivityLog], error) {
	filter.Entity = strings.TrimSpace(filter.Entity)
	filter.Action = strings.TrimSpace(filter.Action)
	return s.find(ctx, info, filter)
}

// Export mengambil seluruh activity log yang cocok, dibatasi MaxExportRows.
func (s *Service) Export(ctx context.Context, info shared.RequestInfo, filter Filter) ([]ActivityLog, error) {
	filter.ListFilters = shared.ListFilters{Page: 1, Limit: MaxExportRows}
	return db.ExecuteTransaction(ctx, s.uow, "activitylogs.export", func(ctx context.Context, tx pgx.Tx) ([]ActivityLog, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, PermissionRead); err != nil {
			return nil, err
		}
		rows, _, err := s.repo.List(ctx, tx, filter)
		return rows, err
	})
}

func (s *Service) find(ctx context.Context, info shared.RequestInfo, filter Filter) (shared.Page[ActivityLog], error) {
	if s.repo == nil {
		return shared.Page[ActivityLog]{}, fmt.Errorf("audit: repository not configured")
	}
	filter.ListFilters = filter.ListFilters.Normalize()
	return db.ExecuteTransaction(ctx, s.uow, "activitylogs.list", func(ctx context.Context, tx pgx.Tx) (shared.Page[ActivityLog], error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, PermissionRead); err != nil {
			return shared.Page[ActivityLog]{}, err
		}
		rows, total, err := s.repo.List(ctx, tx, filter)
		if err != nil {
			return shared.Page[ActivityLog]{}, err
		}
		return shared.NewPage(rows, filter.ListFilters, total), nil
	})
}
