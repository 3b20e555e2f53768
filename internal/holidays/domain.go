// Package holidays manages the company holiday calendar.
package holidays

import (
	"encoding/json"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Holiday types.
const (
	TypeRegular = "regular"
	TypeSpecial = "special"
)

// Holiday is one calendar day off. Date carries no time of day and is stored
// as UTC midnight.
type Holiday struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	Type        string    `json:"type"`
	IsRecurring bool      `json:"is_recurring"`
	Description string    `json:"description"`
	shared.Stamps
}

// MarshalJSON renders Date as YYYY-MM-DD.
func (h Holiday) MarshalJSON() ([]byte, error) {
	type alias Holiday
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(h), Date: h.Date.Format(time.DateOnly)})
}

// Command creates or updates a holiday. Date accepts YYYY-MM-DD or an RFC 3339
// timestamp, which is reduced to its day in the configured timezone.
type Command struct {
	ID          int64  `json:"id"`
	Name        string `json:"name" validate:"required,max=100"`
	Date        string `json:"date" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=regular special"`
	IsRecurring bool   `json:"is_recurring"`
	Description string `json:"description" validate:"max=500"`
}

// Filter narrows holiday listings.
type Filter struct {
	shared.ListFilters
	Year int
	Type string
}

// ParseDate reduces raw to a calendar day in loc, returned as UTC midnight.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		t, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, shared.Validation("date must be YYYY-MM-DD or an RFC 3339 timestamp")
		}
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
