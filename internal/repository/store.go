// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agora/internal/models"
	"agora/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ContentStore is the storage contract the engagement engines are written against.
// Every mutating method is atomic: it either applies completely or not at all.
type ContentStore interface {
	// GetContent returns the item, including removed ones, or a NotFound error.
	GetContent(ctx context.Context, ref models.ContentRef) (*models.Content, error)
	// GetEdge returns the principal's edge on ref, or nil when there is none.
	GetEdge(ctx context.Context, ref models.ContentRef, principal models.Principal) (*models.EngagementEdge, error)
	// ApplyEdgeTransition performs the edge change conditioned on t.From and applies
	// t.Delta to t.Counter in the same transaction. A failed condition is a Conflict;
	// a missing or removed item is NotFound.
	ApplyEdgeTransition(ctx context.Context, t models.EdgeTransition) error
	// ApplyCounterDelta atomically adds delta to a counter of a non-removed item.
	ApplyCounterDelta(ctx context.Context, ref models.ContentRef, field models.CounterField, delta int64) error
	// UpdateBody replaces the body (and, for posts, optionally the title) of a
	// non-removed item and stamps updated_at.
	UpdateBody(ctx context.Context, ref models.ContentRef, title *string, body string, at time.Time) error
	// SetDeleted marks a non-removed item deleted and decrements its container count.
	SetDeleted(ctx context.Context, ref models.ContentRef, at time.Time) error
	// InsertComment inserts the comment and increments the post's comment_count.
	InsertComment(ctx context.Context, comment *models.Comment) error
	// ListCommentsByPost returns non-removed comments ordered by created_at, then id.
	ListCommentsByPost(ctx context.Context, postID uint) ([]*models.Comment, error)
}

// BoardStore covers board and post creation.
type BoardStore interface {
	InsertBoard(ctx context.Context, board *models.Board) error
	GetBoard(ctx context.Context, id uint) (*models.Board, error)
	InsertPost(ctx context.Context, post *models.Post) error
}

// Postgres SQLSTATE codes that mean "another writer got there first".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// translateError maps driver and gorm errors onto the application error taxonomy.
// Errors that are already *models.AppError pass through untouched.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		observability.StoreErrors.WithLabelValues(op, appErr.Code).Inc()
		return err
	}

	translated := classify(err)
	observability.StoreErrors.WithLabelValues(op, translated.Code).Inc()
	return translated
}

func classify(err error) *models.AppError {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.AppError{Code: models.CodeNotFound, Message: "record not found", Err: err}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.NewConflictError("duplicate key", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation:
			return models.NewConflictError(fmt.Sprintf("concurrent write rejected (%s)", pgErr.Code), err)
		}
		return models.NewStoreUnavailableError(err)
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "database is locked") {
		return models.NewConflictError("concurrent write rejected", err)
	}

	return models.NewStoreUnavailableError(err)
}

// contentTable returns the table backing a content type.
func contentTable(t models.ContentType) (string, error) {
	switch t {
	case models.ContentPost:
		return models.Post{}.TableName(), nil
	case models.ContentComment:
		return models.Comment{}.TableName(), nil
	default:
		return "", models.NewValidationError(fmt.Sprintf("unknown content type %q", t))
	}
}

// counterColumn validates that field is a counter maintained on the content type's table.
func counterColumn(t models.ContentType, field models.CounterField) (string, error) {
	switch t {
	case models.ContentPost:
		switch field {
		case models.CounterLikes, models.CounterVotes, models.CounterComments, models.CounterViews:
			return string(field), nil
		}
	case models.ContentComment:
		if field == models.CounterLikes {
			return string(field), nil
		}
	}
	return "", models.NewValidationError(fmt.Sprintf("%s has no counter %q", t, field))
}

// applyCounterDelta runs the single-statement atomic increment used by every counter
// mutation. Zero affected rows means the item is missing or removed.
func applyCounterDelta(tx *gorm.DB, ref models.ContentRef, field models.CounterField, delta int64) error {
	table, err := contentTable(ref.Type)
	if err != nil {
		return err
	}
	column, err := counterColumn(ref.Type, field)
	if err != nil {
		return err
	}

	res := tx.Table(table).
		Where("id = ? AND is_deleted = ?", ref.ID, false).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError(string(ref.Type), ref.ID)
	}
	return nil
}
