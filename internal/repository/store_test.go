package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"agora/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func dir(d models.Direction) *models.Direction { return &d }

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, models.KindConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, models.KindConflict},
		{"unique violation", &pgconn.PgError{Code: "23505"}, models.KindConflict},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), models.KindConflict},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, models.KindStoreUnavailable},
		{"record not found", gorm.ErrRecordNotFound, models.KindNotFound},
		{"duplicated key", gorm.ErrDuplicatedKey, models.KindConflict},
		{"sqlite unique", errors.New("UNIQUE constraint failed: engagement_edges.content_type"), models.KindConflict},
		{"context canceled", context.Canceled, models.KindStoreUnavailable},
		{"deadline", context.DeadlineExceeded, models.KindStoreUnavailable},
		{"io", errors.New("connection reset by peer"), models.KindStoreUnavailable},
		{"app error passes through", models.NewForbiddenError("nope"), models.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError("test", tt.err)
			require.Error(t, got)
			assert.Equal(t, tt.want, models.KindOf(got))
		})
	}

	assert.NoError(t, translateError("test", nil))
}

func TestTranslateError_KeepsCause(t *testing.T) {
	cause := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	err := translateError("test", cause)

	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "40001", pgErr.Code)
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestContentStore_ApplyEdgeTransition_SQL(t *testing.T) {
	ctx := context.Background()
	like := models.DirectionLike
	insertLike := models.EdgeTransition{
		Ref:       models.PostRef(3),
		Principal: models.Account(9),
		To:        &like,
		Counter:   models.CounterLikes,
		Delta:     1,
	}

	tests := []struct {
		name         string
		transition   models.EdgeTransition
		mockBehavior func(mock sqlmock.Sqlmock)
		wantKind     models.ErrorKind
	}{
		{
			name:       "insert and increment commit together",
			transition: insertLike,
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "engagement_edges"`)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "posts" SET "like_count"=like_count + $1 WHERE id = $2 AND is_deleted = $3`)).
					WithArgs(int64(1), 3, false).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name:       "existing edge is a conflict and rolls back",
			transition: insertLike,
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "engagement_edges"`)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
				mock.ExpectRollback()
			},
			wantKind: models.KindConflict,
		},
		{
			name:       "removed content rolls back the edge",
			transition: insertLike,
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "engagement_edges"`)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "posts" SET "like_count"`)).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			wantKind: models.KindNotFound,
		},
		{
			name:       "serialization failure maps to conflict",
			transition: insertLike,
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "engagement_edges"`)).
					WillReturnError(&pgconn.PgError{Code: "40001"})
				mock.ExpectRollback()
			},
			wantKind: models.KindConflict,
		},
		{
			name:       "driver failure maps to store unavailable",
			transition: insertLike,
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "engagement_edges"`)).
					WillReturnError(errors.New("connection reset by peer"))
				mock.ExpectRollback()
			},
			wantKind: models.KindStoreUnavailable,
		},
		{
			name: "delete conditioned on observed direction",
			transition: models.EdgeTransition{
				Ref:       models.CommentRef(5),
				Principal: models.AnonymousSession("tok"),
				From:      dir(models.DirectionLike),
				Counter:   models.CounterLikes,
				Delta:     -1,
			},
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "engagement_edges" WHERE (content_type = $1 AND content_id = $2 AND principal_kind = $3 AND principal_ref = $4) AND direction = $5`)).
					WithArgs(models.ContentComment, 5, models.PrincipalSession, "tok", models.DirectionLike).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "comments" SET "like_count"=like_count + $1`)).
					WithArgs(int64(-1), 5, false).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "direction switch on a vanished edge is a conflict",
			transition: models.EdgeTransition{
				Ref:       models.PostRef(3),
				Principal: models.Account(9),
				From:      dir(models.DirectionUp),
				To:        dir(models.DirectionDown),
				Counter:   models.CounterVotes,
				Delta:     -2,
			},
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "engagement_edges" SET "direction"=$1,"updated_at"=$2`)).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			wantKind: models.KindConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			store := NewContentStore(db)
			tt.mockBehavior(mock)

			err := store.ApplyEdgeTransition(ctx, tt.transition)
			if tt.wantKind == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, models.KindOf(err))
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestContentStore_ApplyCounterDelta_RejectsUnknownCounter(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewContentStore(db)

	err := store.ApplyCounterDelta(context.Background(), models.CommentRef(1), models.CounterVotes, 1)
	require.Error(t, err)
	assert.Equal(t, models.KindInvalidInput, models.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
