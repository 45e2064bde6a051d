package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/wastetrack/internal/model"
)

func TestAuditInsertEncodesMetadata(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)
	now := time.Now().UTC()
	actor := "a1"

	mock.ExpectExec("INSERT INTO audit_records").
		WithArgs("01J", model.AuditActionFailedLogin, &actor, nil, model.AuditStatusFailed,
			"203.0.113.7", "curl/8", "email", []byte(`{"reason":"bad_secret"}`), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), &model.AuditRecord{
		ID:              "01J",
		Action:          model.AuditActionFailedLogin,
		ActorAccountID:  &actor,
		Status:          model.AuditStatusFailed,
		IP:              "203.0.113.7",
		Device:          "curl/8",
		Method:          model.AuthMethodEmail,
		Metadata:        map[string]any{"reason": "bad_secret"},
		ServerTimestamp: now,
	})
	require.NoError(t, err)
}

func TestAuditListBuildsFilter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "action", "actor_account_id", "initiator_account_id", "status",
		"ip", "device", "method", "metadata", "server_timestamp"}).
		AddRow("01J", "account_block", "a1", "admin", "success", "10.0.0.1", "ua", nil, []byte(`{"n":1}`), now)

	mock.ExpectQuery(`WHERE actor_account_id = \$1 AND action = \$2 ORDER BY server_timestamp DESC, id DESC LIMIT \$3`).
		WithArgs("a1", model.AuditActionAccountBlock, 100).
		WillReturnRows(rows)

	recs, err := repo.List(context.Background(), model.AuditFilter{
		ActorAccountID: "a1",
		Action:         model.AuditActionAccountBlock,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, model.AuditActionAccountBlock, r.Action)
	require.NotNil(t, r.InitiatorAccountID)
	assert.Equal(t, "admin", *r.InitiatorAccountID)
	assert.Empty(t, r.Method)
	assert.EqualValues(t, 1, r.Metadata["n"])
}
