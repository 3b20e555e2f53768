package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// GrantSource reads the inputs of the effective-set computation. Archived
// users, roles and permissions and inactive users contribute nothing.
type GrantSource interface {
	RolePermissionNames(ctx context.Context, q db.DBTX, userID int64) ([]string, error)
	UserOverrides(ctx context.Context, q db.DBTX, userID int64) ([]Override, error)
}

// DecisionObserver receives every resolved decision.
type DecisionObserver interface {
	ObserveDecision(permission string, allowed bool, reason string)
}

// Resolver answers permission checks. It is read-only and recomputes the
// effective set on every call.
type Resolver struct {
	source   GrantSource
	logger   *slog.Logger
	observer DecisionObserver
}

// NewResolver builds a Resolver.
func NewResolver(source GrantSource, logger *slog.Logger, observer DecisionObserver) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, logger: logger, observer: observer}
}

// Effective computes the effective set of userID.
func (r *Resolver) Effective(ctx context.Context, q db.DBTX, userID int64) (EffectiveSet, error) {
	base, err := r.source.RolePermissionNames(ctx, q, userID)
	if err != nil {
		return EffectiveSet{}, fmt.Errorf("rbac: role permissions of user %d: %w", userID, err)
	}
	overrides, err := r.source.UserOverrides(ctx, q, userID)
	if err != nil {
		return EffectiveSet{}, fmt.Errorf("rbac: overrides of user %d: %w", userID, err)
	}
	return ComputeEffective(base, overrides), nil
}

// Resolve decides whether userID holds permission. It never fails: unknown
// users and lookup errors resolve to a denial, and lookup errors are logged.
func (r *Resolver) Resolve(ctx context.Context, q db.DBTX, userID int64, permission string) Decision {
	var d Decision
	set, err := r.Effective(ctx, q, userID)
	if err != nil {
		r.logger.Error("rbac lookup failed",
			slog.Int64("user_id", userID),
			slog.String("permission", permission),
			slog.Any("error", err),
		)
		d = Decision{Permission: normalizePermission(permission), Reason: ReasonLookupFailed}
	} else {
		d = set.Decide(permission)
	}
	if !d.Allowed {
		r.logger.Debug("rbac denied",
			slog.Int64("user_id", userID),
			slog.String("permission", d.Permission),
			slog.String("reason", string(d.Reason)),
		)
	}
	if r.observer != nil {
		r.observer.ObserveDecision(d.Permission, d.Allowed, string(d.Reason))
	}
	return d
}

// Require returns UNAUTHENTICATED without an actor and FORBIDDEN when the actor
// lacks permission.
func (r *Resolver) Require(ctx context.Context, q db.DBTX, actorID int64, permission string) error {
	if actorID <= 0 {
		return shared.Unauthenticated()
	}
	if d := r.Resolve(ctx, q, actorID, permission); !d.Allowed {
		return shared.Forbidden(d.Permission)
	}
	return nil
}
