package seed

import (
	"context"
	"errors"
	"testing"

	"agora/internal/identity"
	"agora/internal/models"
	"agora/internal/repository"
	"agora/internal/service"
	"agora/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureBuiltInBoards_Idempotent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()

	created, err := EnsureBuiltInBoards(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, len(BuiltInBoards), created)

	// A removed built-in board comes back on the next boot.
	require.NoError(t, db.Model(&models.Board{}).Where("name = ?", "General").
		Update("is_active", false).Error)

	created, err = EnsureBuiltInBoards(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, created)

	var count int64
	require.NoError(t, db.Model(&models.Board{}).Count(&count).Error)
	assert.Equal(t, int64(len(BuiltInBoards)), count)

	for _, item := range BuiltInBoards {
		var b models.Board
		require.NoError(t, db.Where("name = ?", item.Name).First(&b).Error)
		assert.True(t, b.IsActive, item.Name)
		assert.Equal(t, item.Style, b.Style, item.Name)
		assert.True(t, b.Creator.Equal(SystemPrincipal))
	}
}

func TestSeed_CountersStayConsistent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	core := service.NewCore(
		repository.NewContentStore(db),
		repository.NewBoardStore(db),
		identity.NewResolver(),
		service.NopSink,
		nil,
		service.Options{},
	)

	opts := DefaultOptions()
	opts.Boards = 2
	opts.PostsPerBoard = 3
	opts.CommentsPerPost = 4
	opts.Workers = 1
	opts.FakerSeed = 42

	summary, err := Seed(context.Background(), core, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Boards)
	assert.Equal(t, 6, summary.Posts)
	assert.Equal(t, 24, summary.Comments)
	assert.LessOrEqual(t, summary.Replies, summary.Comments)
	assert.Equal(t, summary.Views, summary.Toggles+summary.Skipped)

	var posts, comments, replies int64
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	require.NoError(t, db.Model(&models.Comment{}).Count(&comments).Error)
	require.NoError(t, db.Model(&models.Comment{}).Where("parent_comment_id IS NOT NULL").Count(&replies).Error)
	assert.Equal(t, int64(6), posts)
	assert.Equal(t, int64(24), comments)
	assert.Equal(t, int64(summary.Replies), replies)

	// Replies only ever hang under root comments.
	var nested int64
	require.NoError(t, db.Table("comments AS c").
		Joins("JOIN comments p ON p.id = c.parent_comment_id").
		Where("p.parent_comment_id IS NOT NULL").Count(&nested).Error)
	assert.Zero(t, nested)

	drift, err := repository.NewReconciler(db).FindDrift(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestSeed_RejectsNegativeCounts(t *testing.T) {
	_, err := Seed(context.Background(), nil, Options{Boards: -1})
	assert.Error(t, err)
}

type conflictingTarget struct {
	views int
}

func (c *conflictingTarget) CreateBoard(_ context.Context, p models.Principal, in service.CreateBoardInput) (*models.Board, error) {
	return &models.Board{ID: 1, Name: in.Name, Style: models.StyleLike, Creator: p}, nil
}

func (c *conflictingTarget) CreatePost(_ context.Context, p models.Principal, in service.CreatePostInput) (*models.Content, error) {
	return &models.Content{Ref: models.PostRef(10), Style: models.StyleLike, Author: p}, nil
}

func (c *conflictingTarget) CreateComment(context.Context, models.Principal, service.CreateCommentInput) (*models.Content, error) {
	return nil, errors.New("unused")
}

func (c *conflictingTarget) ToggleEngagement(context.Context, models.Principal, models.ContentRef, models.Direction) (*service.ToggleResult, error) {
	return nil, models.NewConflictError("toggle retries exhausted", nil)
}

func (c *conflictingTarget) RecordView(context.Context, uint) error {
	c.views++
	return nil
}

func TestSeed_ConflictsAreSkipped(t *testing.T) {
	target := &conflictingTarget{}
	summary, err := Seed(context.Background(), target, Options{
		Boards:        1,
		PostsPerBoard: 1,
		Accounts:      3,
		EngagePercent: 100,
		FakerSeed:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Skipped)
	assert.Zero(t, summary.Toggles)
	assert.Equal(t, 3, target.views)
}
