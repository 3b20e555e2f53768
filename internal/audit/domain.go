package audit

import (
	"encoding/json"
	"time"

	"github.com/odyssey-erp/backoffice/internal/changes"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// PermissionRead mengizinkan akses baca ke activity log.
const PermissionRead = "activitylogs:read"

// Action names stored in activitylogs.action.
const (
	ActionCreate            = "create"
	ActionUpdate            = "update"
	ActionArchive           = "archive"
	ActionRestore           = "restore"
	ActionAssignPermissions = "assign_permissions"
	ActionRemovePermissions = "remove_permissions"
	ActionAssignRoles       = "assign_roles"
	ActionRemoveRoles       = "remove_roles"
	ActionGrantPermissions  = "grant_permissions"
	ActionDenyPermissions   = "deny_permissions"
	ActionRemoveOverrides   = "remove_user_permissions"
	ActionVerifyEmail       = "verify_email"
)

// Entity names stored in activitylogs.entity.
const (
	EntityUser       = "users"
	EntityRole       = "roles"
	EntityPermission = "permissions"
	EntityHoliday    = "holidays"
)

// Entry adalah satu catatan aktivitas yang ditulis bersama mutasi bisnis.
type Entry struct {
	Action     string
	Entity     string
	EmployeeID *int64
	// Details is marshalled to JSON. json.RawMessage, []byte and string values
	// are treated as pre-encoded.
	Details     any
	RequestInfo shared.RequestInfo
	OccurredAt  time.Time
}

// Details is the standard payload of a mutation record.
type Details struct {
	ActorID     int64           `json:"actor_id"`
	EntityID    int64           `json:"entity_id,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	Changes     changes.Changes `json:"changes"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ActivityLog mewakili satu baris activitylogs.
type ActivityLog struct {
	ID          int64           `json:"id"`
	Action      string          `json:"action"`
	Entity      string          `json:"entity"`
	EmployeeID  *int64          `json:"employee_id,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Details     json.RawMessage `json:"details"`
	RequestInfo json.RawMessage `json:"request_info"`
}

// Filter menampung filter pencarian activity log.
type Filter struct {
	Entity string
	Action string
	shared.ListFilters
}

// Mutation builds the standard entry of a single-entity mutation performed by
// the actor of info.
func Mutation(action, entity string, entityID int64, info shared.RequestInfo, diff changes.Changes, explanation string) Entry {
	now := time.Now().UTC()
	if diff == nil {
		diff = changes.Changes{}
	}
	return Entry{
		Action:     action,
		Entity:     entity,
		EmployeeID: info.Actor(),
		Details: Details{
			ActorID:     info.ActorID,
			EntityID:    entityID,
			Explanation: explanation,
			Changes:     diff,
			Timestamp:   now,
		},
		RequestInfo: info,
		OccurredAt:  now,
	}
}
