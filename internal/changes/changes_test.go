package changes_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/changes"
)

type account struct {
	Username  string
	Email     string
	FirstName string
	Verified  *time.Time
	Birthday  time.Time
	RoleIDs   []int64
}

func accountTracker(loc *time.Location) *changes.Tracker[account] {
	return changes.NewTracker(
		changes.Field[account]{Name: "username", Value: func(a account) any { return a.Username }},
		changes.Field[account]{Name: "email", Value: func(a account) any { return a.Email }},
		changes.Field[account]{Name: "first_name", Value: func(a account) any { return a.FirstName }},
		changes.Field[account]{Name: "email_verified_at", Value: func(a account) any { return a.Verified }, Normalize: changes.InTimezone(loc)},
		changes.Field[account]{Name: "birthday", Value: func(a account) any { return a.Birthday }, Normalize: changes.DateOnly(loc)},
		changes.Field[account]{Name: "role_ids", Value: func(a account) any { return a.RoleIDs }, Normalize: changes.SortedIDs},
	)
}

func TestDiffReportsOnlyChangedFields(t *testing.T) {
	tracker := accountTracker(time.UTC)
	before := account{Username: "alice", Email: "a@x.io", FirstName: "Alice"}
	after := before
	after.Email = "alice@x.io"

	diff := tracker.Diff(before, after)
	require.Len(t, diff, 1)
	assert.Equal(t, changes.Change{Old: "a@x.io", New: "alice@x.io"}, diff["email"])
}

func TestDiffIdenticalIsEmpty(t *testing.T) {
	tracker := accountTracker(time.UTC)
	a := account{Username: "bob", RoleIDs: []int64{1, 2}}
	assert.True(t, tracker.Diff(a, a).Empty())
}

func TestTimezoneNormalization(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	tracker := accountTracker(jakarta)

	instant := time.Date(2024, 5, 1, 17, 30, 0, 0, time.UTC)
	sameInstant := instant.In(jakarta)

	before := account{Verified: &instant, Birthday: instant}
	after := account{Verified: &sameInstant, Birthday: sameInstant}
	assert.True(t, tracker.Diff(before, after).Empty())
}

func TestDateOnlyUsesCanonicalZone(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	tracker := accountTracker(jakarta)

	// 17:30 UTC on May 1 is already May 2 in Jakarta.
	before := account{Birthday: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	after := account{Birthday: time.Date(2024, 5, 1, 17, 30, 0, 0, time.UTC)}

	diff := tracker.Diff(before, after)
	assert.Equal(t, changes.Change{Old: "2024-05-01", New: "2024-05-02"}, diff["birthday"])
}

func TestNilPointerToValue(t *testing.T) {
	tracker := accountTracker(time.UTC)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	diff := tracker.Diff(account{}, account{Verified: &at})
	assert.Equal(t, changes.Change{Old: nil, New: "2024-01-02T03:04:05Z"}, diff["email_verified_at"])
}

func TestSortedIDsIgnoresOrder(t *testing.T) {
	tracker := accountTracker(time.UTC)
	assert.True(t, tracker.Diff(account{RoleIDs: []int64{3, 1, 2}}, account{RoleIDs: []int64{1, 2, 3}}).Empty())
	assert.True(t, tracker.Diff(account{RoleIDs: nil}, account{RoleIDs: []int64{}}).Empty())

	diff := tracker.Diff(account{RoleIDs: []int64{2, 1}}, account{RoleIDs: []int64{3}})
	assert.Equal(t, changes.Change{Old: []int64{1, 2}, New: []int64{3}}, diff["role_ids"])
}

func TestDiffFromNilSnapshotListsSetFields(t *testing.T) {
	after := changes.Snapshot{"name": "Admin", "description": nil}
	diff := changes.Diff(nil, after)
	assert.Equal(t, []string{"name"}, diff.Fields())
	assert.Equal(t, changes.Change{Old: nil, New: "Admin"}, diff["name"])
}
