package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agora/internal/models"
	"agora/internal/observability"

	"gorm.io/gorm"
)

type boardStore struct {
	db *gorm.DB
}

// NewBoardStore creates a new gorm-backed board store.
func NewBoardStore(db *gorm.DB) BoardStore {
	return &boardStore{db: db}
}

// InsertBoard creates the board unless an active board already uses the name
// (case-insensitively), in which case it returns a validation error.
func (s *boardStore) InsertBoard(ctx context.Context, board *models.Board) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Board{}).
			Where("LOWER(name) = ? AND is_active = ?", strings.ToLower(board.Name), true).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return duplicateBoard(board.Name)
		}
		return tx.Create(board).Error
	})
	if err == nil {
		return nil
	}

	translated := translateError("InsertBoard", err)
	// The partial unique index catches the race the count above cannot.
	if models.KindOf(translated) == models.KindConflict {
		return duplicateBoard(board.Name)
	}
	return translated
}

func duplicateBoard(name string) error {
	return models.NewValidationError(fmt.Sprintf("a board named %q already exists", name))
}

func (s *boardStore) GetBoard(ctx context.Context, id uint) (*models.Board, error) {
	var board models.Board
	if err := s.db.WithContext(ctx).First(&board, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("board", id)
		}
		return nil, translateError("GetBoard", err)
	}
	return &board, nil
}

// InsertPost increments the board's post_count and inserts the post in one
// transaction. The board must be active.
func (s *boardStore) InsertPost(ctx context.Context, post *models.Post) error {
	ctx, span := observability.StartStoreSpan(ctx, "InsertPost", models.Post{}.TableName())
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Board{}).
			Where("id = ? AND is_active = ?", post.BoardID, true).
			UpdateColumn("post_count", gorm.Expr("post_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("board", post.BoardID)
		}
		return tx.Create(post).Error
	})
	return translateError("InsertPost", err)
}
