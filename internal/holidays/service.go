package holidays

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

// RepositoryPort defines data access methods for holidays.
type RepositoryPort interface {
	GetHoliday(ctx context.Context, q db.DBTX, id int64) (Holiday, error)
	ListHolidays(ctx context.Context, q db.DBTX, f Filter) ([]Holiday, int, error)
	HolidayOptions(ctx context.Context, q db.DBTX, search string) ([]shared.Option, error)
	CreateHoliday(ctx context.Context, q db.DBTX, h Holiday) (Holiday, error)
	UpdateHoliday(ctx context.Context, q db.DBTX, h Holiday) (Holiday, error)
	SetHolidayArchived(ctx context.Context, q db.DBTX, id int64, archive bool, actor *int64) (Holiday, error)
}

// Authorizer checks the actor's permission inside the command transaction.
type Authorizer interface {
	Require(ctx context.Context, q db.DBTX, actorID int64, permission string) error
}

// Service handles the holiday calendar.
type Service struct {
	uow     *db.UnitOfWork
	repo    RepositoryPort
	authz   Authorizer
	audit   audit.Recorder
	loc     *time.Location
	tracker *changes.Tracker[Holiday]
}

// NewService builds Service instance. loc decides which day a timestamp
// falls on.
func NewService(uow *db.UnitOfWork, repo RepositoryPort, authz Authorizer, recorder audit.Recorder, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		uow:   uow,
		repo:  repo,
		authz: authz,
		audit: recorder,
		loc:   loc,
		tracker: changes.NewTracker(
			changes.Field[Holiday]{Name: "name", Value: func(h Holiday) any { return h.Name }},
			// stored dates are UTC midnight
			changes.Field[Holiday]{Name: "date", Value: func(h Holiday) any { return h.Date }, Normalize: changes.DateOnly(time.UTC)},
			changes.Field[Holiday]{Name: "type", Value: func(h Holiday) any { return h.Type }},
			changes.Field[Holiday]{Name: "is_recurring", Value: func(h Holiday) any { return h.IsRecurring }},
			changes.Field[Holiday]{Name: "description", Value: func(h Holiday) any { return h.Description }},
			changes.Field[Holiday]{Name: "deleted_at", Value: func(h Holiday) any { return h.DeletedAt }, Normalize: changes.InTimezone(loc)},
		),
	}
}

// Get returns one holiday.
func (s *Service) Get(ctx context.Context, info shared.RequestInfo, id int64) (Holiday, error) {
	return db.ExecuteTransaction(ctx, s.uow, "holidays.get", func(ctx context.Context, tx pgx.Tx) (Holiday, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermHolidaysRead); err != nil {
			return Holiday{}, err
		}
		return s.repo.GetHoliday(ctx, tx, id)
	})
}

// List returns a page of holidays. Year keeps recurring holidays of any year.
func (s *Service) List(ctx context.Context, info shared.RequestInfo, f Filter) (shared.Page[Holiday], error) {
	f.ListFilters = f.ListFilters.Normalize()
	f.Type = strings.ToLower(strings.TrimSpace(f.Type))
	return db.ExecuteTransaction(ctx, s.uow, "holidays.list", func(ctx context.Context, tx pgx.Tx) (shared.Page[Holiday], error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermHolidaysRead); err != nil {
			return shared.Page[Holiday]{}, err
		}
		items, total, err := s.repo.ListHolidays(ctx, tx, f)
		if err != nil {
			return shared.Page[Holiday]{}, err
		}
		return shared.NewPage(items, f.ListFilters, total), nil
	})
}

// Combobox returns active holidays as options.
func (s *Service) Combobox(ctx context.Context, info shared.RequestInfo, search string) ([]shared.Option, error) {
	return db.ExecuteTransaction(ctx, s.uow, "holidays.combobox", func(ctx context.Context, tx pgx.Tx) ([]shared.Option, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermHolidaysRead); err != nil {
			return nil, err
		}
		opts, err := s.repo.HolidayOptions(ctx, tx, search)
		if err != nil {
			return nil, err
		}
		if opts == nil {
			opts = []shared.Option{}
		}
		return opts, nil
	})
}

func (s *Service) parse(cmd Command) (Holiday, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Type = strings.ToLower(strings.TrimSpace(cmd.Type))
	cmd.Description = strings.TrimSpace(cmd.Description)
	if err := shared.Validate(cmd); err != nil {
		return Holiday{}, err
	}
	date, err := ParseDate(strings.TrimSpace(cmd.Date), s.loc)
	if err != nil {
		return Holiday{}, err
	}
	return Holiday{
		ID:          cmd.ID,
		Name:        cmd.Name,
		Date:        date,
		Type:        cmd.Type,
		IsRecurring: cmd.IsRecurring,
		Description: cmd.Description,
	}, nil
}

// Create adds a holiday.
func (s *Service) Create(ctx context.Context, info shared.RequestInfo, cmd Command) (Holiday, error) {
	return db.ExecuteTransaction(ctx, s.uow, "holidays.create", func(ctx context.Context, tx pgx.Tx) (Holiday, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermHolidaysCreate); err != nil {
			return Holiday{}, err
		}
		h, err := s.parse(cmd)
		if err != nil {
			return Holiday{}, err
		}
		h.CreatedBy, h.UpdatedBy = info.Actor(), info.Actor()
		created, err := s.repo.CreateHoliday(ctx, tx, h)
		if err != nil {
			return Holiday{}, err
		}
		entry := audit.Mutation(audit.ActionCreate, audit.EntityHoliday, created.ID, info, changes.Diff(nil, s.tracker.Snapshot(created)), "")
		if err := s.audit.Record(ctx, tx, entry); err != nil {
			return Holiday{}, err
		}
		return created, nil
	})
}

// Update edits an active holiday.
func (s *Service) Update(ctx context.Context, info shared.RequestInfo, cmd Command) (Holiday, error) {
	return db.ExecuteTransaction(ctx, s.uow, "holidays.update", func(ctx context.Context, tx pgx.Tx) (Holiday, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, rbac.PermHolidaysUpdate); err != nil {
			return Holiday{}, err
		}
		if cmd.ID <= 0 {
			return Holiday{}, shared.Validation("id is required")
		}
		next, err := s.parse(cmd)
		if err != nil {
			return Holiday{}, err
		}
		before, err := s.repo.GetHoliday(ctx, tx, cmd.ID)
		if err != nil {
			return Holiday{}, err
		}
		if err := before.EnsureMutable("Holiday"); err != nil {
			return Holiday{}, err
		}
		next.Stamps = before.Stamps
		next.UpdatedBy = info.Actor()
		after, err := s.repo.UpdateHoliday(ctx, tx, next)
		if err != nil {
			return Holiday{}, err
		}
		entry := audit.Mutation(audit.ActionUpdate, audit.EntityHoliday, after.ID, info, s.tracker.Diff(before, after), "")
		if err := s.audit.Record(ctx, tx, entry); err != nil {
			return Holiday{}, err
		}
		return after, nil
	})
}

// Archive soft-deletes a holiday.
func (s *Service) Archive(ctx context.Context, info shared.RequestInfo, id int64) (Holiday, error) {
	return s.setArchived(ctx, info, id, true)
}

// Restore reactivates an archived holiday. Restoring onto an active holiday
// with the same date and name fails on the unique index.
func (s *Service) Restore(ctx context.Context, info shared.RequestInfo, id int64) (Holiday, error) {
	return s.setArchived(ctx, info, id, false)
}

func (s *Service) setArchived(ctx context.Context, info shared.RequestInfo, id int64, archive bool) (Holiday, error) {
	label, perm, action := "holidays.restore", rbac.PermHolidaysRestore, audit.ActionRestore
	if archive {
		label, perm, action = "holidays.archive", rbac.PermHolidaysArchive, audit.ActionArchive
	}
	return db.ExecuteTransaction(ctx, s.uow, label, func(ctx context.Context, tx pgx.Tx) (Holiday, error) {
		if err := s.authz.Require(ctx, tx, info.ActorID, perm); err != nil {
			return Holiday{}, err
		}
		before, err := s.repo.GetHoliday(ctx, tx, id)
		if err != nil {
			return Holiday{}, err
		}
		if archive {
			err = before.EnsureArchivable("Holiday")
		} else {
			err = before.EnsureRestorable("Holiday")
		}
		if err != nil {
			return Holiday{}, err
		}
		after, err := s.repo.SetHolidayArchived(ctx, tx, id, archive, info.Actor())
		if err != nil {
			return Holiday{}, err
		}
		if err := s.audit.Record(ctx, tx, audit.Mutation(action, audit.EntityHoliday, id, info, s.tracker.Diff(before, after), "")); err != nil {
			return Holiday{}, err
		}
		return after, nil
	})
}
