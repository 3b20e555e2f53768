package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/changes"
	"github.com/odyssey-erp/backoffice/internal/platform/db/dbtest"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func TestRecordInsertsOneRow(t *testing.T) {
	tx := &dbtest.Tx{}
	info := shared.RequestInfo{ActorID: 7, RequestID: "req-1", IP: "10.0.0.1"}
	entry := audit.Mutation(audit.ActionUpdate, audit.EntityUser, 12, info, changes.Changes{
		"email": {Old: "a@x.io", New: "b@x.io"},
	}, "")

	require.NoError(t, audit.NewLogger(nil).Record(context.Background(), tx, entry))

	execs := tx.Execs()
	require.Len(t, execs, 1)
	args := execs[0].Args
	assert.Equal(t, "update", args[0])
	assert.Equal(t, "users", args[1])

	var details audit.Details
	require.NoError(t, json.Unmarshal(args[2].(json.RawMessage), &details))
	assert.Equal(t, int64(7), details.ActorID)
	assert.Equal(t, int64(12), details.EntityID)
	assert.Equal(t, "b@x.io", details.Changes["email"].New)

	actor := args[3].(*int64)
	require.NotNil(t, actor)
	assert.Equal(t, int64(7), *actor)

	var stored shared.RequestInfo
	require.NoError(t, json.Unmarshal(args[5].(json.RawMessage), &stored))
	assert.Equal(t, info, stored)
}

func TestRecordWrapsInvalidRawJSON(t *testing.T) {
	tx := &dbtest.Tx{}
	err := audit.NewLogger(nil).Record(context.Background(), tx, audit.Entry{
		Action:  audit.ActionCreate,
		Entity:  audit.EntityRole,
		Details: json.RawMessage(`{not json`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"raw":"{not json"}`, string(tx.Execs()[0].Args[2].(json.RawMessage)))
}

func TestRecordKeepsValidPreEncodedPayload(t *testing.T) {
	tx := &dbtest.Tx{}
	err := audit.NewLogger(nil).Record(context.Background(), tx, audit.Entry{
		Action:  audit.ActionCreate,
		Entity:  audit.EntityRole,
		Details: `{"explanation":"seed"}`,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"explanation":"seed"}`, string(tx.Execs()[0].Args[2].(json.RawMessage)))
}

func TestRecordRejectsIncompleteEntry(t *testing.T) {
	err := audit.NewLogger(nil).Record(context.Background(), &dbtest.Tx{}, audit.Entry{Entity: audit.EntityRole})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordPropagatesInsertFailure(t *testing.T) {
	tx := &dbtest.Tx{ExecErr: errors.New("disk full")}
	err := audit.NewLogger(nil).Record(context.Background(), tx, audit.Entry{
		Action:     audit.ActionArchive,
		Entity:     audit.EntityHoliday,
		OccurredAt: time.Now(),
	})
	assert.ErrorContains(t, err, "disk full")
}

func TestRecordFailsOnUnencodableDetails(t *testing.T) {
	err := audit.NewLogger(nil).Record(context.Background(), &dbtest.Tx{}, audit.Entry{
		Action:  audit.ActionCreate,
		Entity:  audit.EntityRole,
		Details: map[string]any{"bad": make(chan int)},
	})
	assert.Error(t, err)
}
