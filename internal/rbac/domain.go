package rbac

import (
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Permission represents an atomic capability named resource:action.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
	shared.Stamps
}

// Override is a per-user grant (Allowed) or deny of one permission.
type Override struct {
	PermissionID int64  `json:"permission_id"`
	Permission   string `json:"permission"`
	Allowed      bool   `json:"is_allowed"`
}

// Reason explains a Decision.
type Reason string

const (
	ReasonRoleGrant         Reason = "role_grant"
	ReasonOverrideGrant     Reason = "override_grant"
	ReasonOverrideDeny      Reason = "override_deny"
	ReasonPermissionMissing Reason = "permission_missing"
	ReasonLookupFailed      Reason = "lookup_failed"
)

// Decision is the outcome of resolving one permission for one user.
type Decision struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
	Reason     Reason `json:"reason"`
}

// Source tells where an effective permission comes from.
type Source string

const (
	SourceRole  Source = "role"
	SourceGrant Source = "grant"
)

// EffectivePermission is one entry of a user's effective set.
type EffectivePermission struct {
	Name   string `json:"name"`
	Source Source `json:"source"`
}

// EffectiveView is the effective set of a user as exposed over HTTP.
type EffectiveView struct {
	UserID      int64                 `json:"user_id"`
	Permissions []EffectivePermission `json:"permissions"`
	Denied      []string              `json:"denied"`
}

// LinkResult is the link set of an owner after an assignment command.
type LinkResult struct {
	OwnerID int64   `json:"owner_id"`
	IDs     []int64 `json:"ids"`
}

// OverrideResult is the override set of a user after an override command.
type OverrideResult struct {
	UserID  int64   `json:"user_id"`
	Granted []int64 `json:"granted"`
	Denied  []int64 `json:"denied"`
}
