package testutil

import (
	"testing"
	"time"

	"agora/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Fixture principals shared across packages.
var (
	Alice   = models.Account(1)
	Bob     = models.Account(2)
	Visitor = models.AnonymousSession("00000000-0000-4000-8000-000000000001")
)

// CreateBoard inserts an active board with a random name.
func CreateBoard(t testing.TB, db *gorm.DB, style models.Style, creator models.Principal) *models.Board {
	t.Helper()
	board := &models.Board{
		Name:        gofakeit.Company() + " " + gofakeit.UUID()[:8],
		Description: gofakeit.Sentence(8),
		Style:       style,
		Creator:     creator,
		IsActive:    true,
	}
	require.NoError(t, db.Create(board).Error)
	return board
}

// CreatePost inserts a post in board and bumps the board's post_count so counters stay consistent.
func CreatePost(t testing.TB, db *gorm.DB, board *models.Board, author models.Principal) *models.Post {
	t.Helper()
	post := &models.Post{
		BoardID: board.ID,
		Title:   gofakeit.Sentence(5),
		Body:    gofakeit.Paragraph(1, 3, 8, " "),
		Style:   board.Style,
		Author:  author,
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		return tx.Model(&models.Board{}).Where("id = ?", board.ID).
			UpdateColumn("post_count", gorm.Expr("post_count + 1")).Error
	}))
	return post
}

// CommentOption customises a fixture comment before it is inserted.
type CommentOption func(*models.Comment)

// WithParent makes the comment a reply to parentID.
func WithParent(parentID uint) CommentOption {
	return func(c *models.Comment) { c.ParentCommentID = &parentID }
}

// At pins created_at and updated_at.
func At(ts time.Time) CommentOption {
	return func(c *models.Comment) {
		c.CreatedAt = ts
		c.UpdatedAt = ts
	}
}

// WithBody sets the comment body.
func WithBody(body string) CommentOption {
	return func(c *models.Comment) { c.Body = body }
}

// CreateComment inserts a comment on post and bumps the post's comment_count.
func CreateComment(t testing.TB, db *gorm.DB, post *models.Post, author models.Principal, opts ...CommentOption) *models.Comment {
	t.Helper()
	comment := &models.Comment{
		PostID: post.ID,
		Body:   gofakeit.Sentence(10),
		Author: author,
	}
	for _, opt := range opts {
		opt(comment)
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + 1")).Error
	}))
	return comment
}

// ReloadPost reads the current row of a post, removed or not.
func ReloadPost(t testing.TB, db *gorm.DB, id uint) *models.Post {
	t.Helper()
	var post models.Post
	require.NoError(t, db.First(&post, id).Error)
	return &post
}

// ReloadComment reads the current row of a comment, removed or not.
func ReloadComment(t testing.TB, db *gorm.DB, id uint) *models.Comment {
	t.Helper()
	var comment models.Comment
	require.NoError(t, db.First(&comment, id).Error)
	return &comment
}

// ReloadBoard reads the current row of a board.
func ReloadBoard(t testing.TB, db *gorm.DB, id uint) *models.Board {
	t.Helper()
	var board models.Board
	require.NoError(t, db.First(&board, id).Error)
	return &board
}

// CountEdges returns how many edges exist on ref.
func CountEdges(t testing.TB, db *gorm.DB, ref models.ContentRef) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.EngagementEdge{}).
		Where("content_type = ? AND content_id = ?", ref.Type, ref.ID).
		Count(&n).Error)
	return n
}
