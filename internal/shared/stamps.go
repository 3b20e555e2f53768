package shared

import "time"

// Stamps are the audit columns shared by every managed aggregate.
type Stamps struct {
	CreatedBy *int64     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedBy *int64     `json:"updated_by,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedBy *int64     `json:"deleted_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsArchived reports whether the row is soft-deleted.
func (s Stamps) IsArchived() bool {
	return s.DeletedAt != nil
}

// EnsureMutable rejects updates to archived rows.
func (s Stamps) EnsureMutable(entity string) error {
	if s.IsArchived() {
		return ArchivedReadOnly(entity)
	}
	return nil
}

// EnsureArchivable rejects archiving an archived row.
func (s Stamps) EnsureArchivable(entity string) error {
	if s.IsArchived() {
		return AlreadyArchived(entity)
	}
	return nil
}

// EnsureRestorable rejects restoring an active row.
func (s Stamps) EnsureRestorable(entity string) error {
	if !s.IsArchived() {
		return NotArchived(entity)
	}
	return nil
}

// Option is a combobox entry.
type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
