package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"agora/internal/models"
	"agora/internal/testutil"
	"agora/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	owned := likePost(3)
	removed := likePost(4)
	removed.IsDeleted = true

	store := failOnWrite(t)
	store.getContentFn = func(_ context.Context, ref models.ContentRef) (*models.Content, error) {
		switch ref.ID {
		case 3:
			return owned, nil
		case 4:
			return removed, nil
		default:
			return nil, models.NewNotFoundError("post", ref.ID)
		}
	}
	svc := NewModerationService(store, validation.DefaultLimits())
	ctx := context.Background()

	got, err := svc.Authorize(ctx, models.PostRef(3), testutil.Alice)
	require.NoError(t, err)
	assert.Same(t, owned, got)

	_, err = svc.Authorize(ctx, models.PostRef(3), testutil.Bob)
	assertKind(t, models.KindForbidden, err)

	// An anonymous session whose token happens to equal the owner's account ref is not the owner.
	_, err = svc.Authorize(ctx, models.PostRef(3), models.AnonymousSession("1"))
	assertKind(t, models.KindForbidden, err)

	_, err = svc.Authorize(ctx, models.PostRef(4), testutil.Alice)
	assertKind(t, models.KindNotFound, err)

	_, err = svc.Authorize(ctx, models.PostRef(99), testutil.Alice)
	assertKind(t, models.KindNotFound, err)
}

func TestEdit_ValidationPrecedesStoreAccess(t *testing.T) {
	svc := NewModerationService(failOnWrite(t), validation.DefaultLimits())
	ctx := context.Background()
	title := "ok"

	tests := []struct {
		name string
		ref  models.ContentRef
		in   EditInput
	}{
		{"empty comment", models.CommentRef(1), EditInput{Body: "   "}},
		{"comment too long", models.CommentRef(1), EditInput{Body: strings.Repeat("é", 1001)}},
		{"comment with title", models.CommentRef(1), EditInput{Body: "x", Title: &title}},
		{"post body too long", models.PostRef(1), EditInput{Body: strings.Repeat("x", 10001)}},
		{"empty post title", models.PostRef(1), EditInput{Body: "x", Title: new(string)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Edit(ctx, tt.ref, testutil.Alice, tt.in)
			assertKind(t, models.KindInvalidInput, err)
		})
	}
}

func TestScenario_OwnerEditsNonOwnerForbidden(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()
	board := testutil.CreateBoard(t, s.db, models.StyleLike, testutil.Alice)
	post := testutil.CreatePost(t, s.db, board, testutil.Alice)

	_, err := s.core.EditContent(ctx, testutil.Bob, models.PostRef(post.ID), EditInput{Body: "hijacked"})
	assertKind(t, models.KindForbidden, err)
	assert.Empty(t, s.sink.Calls())

	title := "  Better title "
	edited, err := s.core.EditContent(ctx, testutil.Alice, models.PostRef(post.ID), EditInput{Body: "rewritten", Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "rewritten", edited.Body)
	assert.Equal(t, "Better title", edited.Title)
	assert.True(t, edited.Edited())
	require.Len(t, s.sink.Calls(), 1)
}

func TestScenario_IdenticalEditIsNoop(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()
	board := testutil.CreateBoard(t, s.db, models.StyleLike, testutil.Alice)
	post := testutil.CreatePost(t, s.db, board, testutil.Alice)
	comment := testutil.CreateComment(t, s.db, post, testutil.Visitor, testutil.WithBody("same words"))

	got, err := s.core.EditContent(ctx, testutil.Visitor, models.CommentRef(comment.ID), EditInput{Body: "  same words\n"})
	require.NoError(t, err)
	assert.False(t, got.Edited())
	assert.Empty(t, s.sink.Calls())

	reloaded := testutil.ReloadComment(t, s.db, comment.ID)
	assert.True(t, reloaded.UpdatedAt.Equal(reloaded.CreatedAt))
}

func TestScenario_RemoveFreezesContent(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()
	board := testutil.CreateBoard(t, s.db, models.StyleLike, testutil.Alice)
	post := testutil.CreatePost(t, s.db, board, testutil.Alice)
	ref := models.PostRef(post.ID)

	_, err := s.core.ToggleEngagement(ctx, testutil.Bob, ref, models.DirectionLike)
	require.NoError(t, err)

	_, err = s.core.RemoveContent(ctx, testutil.Bob, ref)
	assertKind(t, models.KindForbidden, err)

	removed, err := s.core.RemoveContent(ctx, testutil.Alice, ref)
	require.NoError(t, err)
	assert.True(t, removed.IsDeleted)
	assert.Equal(t, uint32(1), removed.LikeCount)
	assert.Zero(t, testutil.ReloadBoard(t, s.db, board.ID).PostCount)

	// Frozen: no further engagement, edits or removals.
	_, err = s.core.ToggleEngagement(ctx, testutil.Bob, ref, models.DirectionLike)
	assertKind(t, models.KindNotFound, err)
	_, err = s.core.EditContent(ctx, testutil.Alice, ref, EditInput{Body: "late"})
	assertKind(t, models.KindNotFound, err)
	_, err = s.core.RemoveContent(ctx, testutil.Alice, ref)
	assertKind(t, models.KindNotFound, err)

	// Still readable with counters intact.
	got, err := s.core.GetContent(ctx, ref)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, uint32(1), got.LikeCount)
	assert.Equal(t, int64(1), testutil.CountEdges(t, s.db, ref))

	calls := s.sink.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1], "post:"+itoa(post.ID)+":comments")
}

func TestScenario_RemoveCommentDecrementsPost(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()
	board := testutil.CreateBoard(t, s.db, models.StyleLike, testutil.Alice)
	post := testutil.CreatePost(t, s.db, board, testutil.Alice)
	comment := testutil.CreateComment(t, s.db, post, testutil.Visitor)
	require.Equal(t, uint32(1), testutil.ReloadPost(t, s.db, post.ID).CommentCount)

	_, err := s.core.RemoveContent(ctx, testutil.Visitor, models.CommentRef(comment.ID))
	require.NoError(t, err)
	assert.Zero(t, testutil.ReloadPost(t, s.db, post.ID).CommentCount)
}

func TestEdit_StampsUpdatedAt(t *testing.T) {
	s := newScenario(t)
	board := testutil.CreateBoard(t, s.db, models.StyleLike, testutil.Alice)
	post := testutil.CreatePost(t, s.db, board, testutil.Alice)

	at := post.CreatedAt.Add(time.Hour)
	s.core.moderation.now = func() time.Time { return at }

	edited, err := s.core.EditContent(context.Background(), testutil.Alice, models.PostRef(post.ID), EditInput{Body: "new"})
	require.NoError(t, err)
	assert.WithinDuration(t, at, edited.UpdatedAt, time.Second)
}
