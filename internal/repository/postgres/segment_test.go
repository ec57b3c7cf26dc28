package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/segment"
)

func TestSegmentRepoGetDecodesCriteria(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM segments WHERE id = $1")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "criteria", "auto_refresh",
			"contact_count", "last_refreshed_at", "created_at", "updated_at"}).
			AddRow("s-1", "u-1", "VIP", []byte(`[{"field":"tags","operator":"contains","value":["vip"]}]`),
				true, 3, nil, now, now))

	s, err := NewSegmentRepo(db).Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, s.Criteria, 1)
	assert.Equal(t, domain.OpContains, s.Criteria[0].Operator)
	assert.Equal(t, []any{"vip"}, s.Criteria[0].Value)
	assert.Equal(t, 3, s.ContactCount)
}

func TestSegmentRepoReplaceMembers(t *testing.T) {
	db, mock := setupTestDB(t)
	at := time.Now()
	f, _ := segment.BuildFilter([]domain.Criterion{{Field: "lead_score", Operator: domain.OpGte, Value: 70.0}})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM segments WHERE id = $1 FOR UPDATE")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s-1"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM segment_members WHERE segment_id = $1")).
		WithArgs("s-1").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("WHERE c.lead_score >= $3")).
		WithArgs("s-1", at, 70.0).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE segments SET contact_count = $2")).
		WithArgs("s-1", int64(4), at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := NewSegmentRepo(db).ReplaceMembers(context.Background(), "s-1", f, at)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSegmentRepoReplaceMembersRollsBack(t *testing.T) {
	db, mock := setupTestDB(t)
	at := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s-1"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM segment_members")).
		WithArgs("s-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO segment_members")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := NewSegmentRepo(db).ReplaceMembers(context.Background(), "s-1", segment.Filter{}, at)
	assert.ErrorContains(t, err, "connection reset")
}

func TestSegmentRepoReplaceMembersUnknown(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := NewSegmentRepo(db).ReplaceMembers(context.Background(), "nope", segment.Filter{}, time.Now())
	assert.ErrorIs(t, err, segment.ErrNotFound)
}

func TestSegmentRepoMembers(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("JOIN contacts c ON c.id = m.contact_id")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "phone",
			"company", "city", "status", "source", "project_id", "lead_score", "budget", "tags",
			"property_types", "custom_fields", "created_at"}).
			AddRow("ct-1", "Anna", "Rossi", "anna@example.com", "", "", "Milano", "lead", "web", "",
				80, "350000.00", "{vip,hot}", "{villa}", []byte(`{"agent":"Luca"}`), now).
			AddRow("ct-2", "Bruno", "Verdi", "", "+39 333 1234567", "", "Roma", "client", "", "",
				10, nil, "{}", "{}", []byte(`{}`), now))

	members, err := NewSegmentRepo(db).Members(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, members, 2)

	require.NotNil(t, members[0].Budget)
	assert.InDelta(t, 350000.0, *members[0].Budget, 0.001)
	assert.Equal(t, []string{"vip", "hot"}, members[0].Tags)
	assert.Equal(t, "Luca", members[0].Custom["agent"])
	assert.Nil(t, members[1].Budget)
	assert.Empty(t, members[1].Tags)
}
