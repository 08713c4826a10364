package service

import (
	"context"

	"agora/internal/cache"
	"agora/internal/models"
	"agora/internal/repository"
	"agora/internal/validation"
)

type CreateBoardInput struct {
	Name        string
	Description string
	Style       string
}

type CreatePostInput struct {
	BoardID uint
	Title   string
	Body    string
}

// BoardService creates boards and posts and serves read-only content views.
type BoardService struct {
	boards  repository.BoardStore
	content repository.ContentStore
	limits  validation.Limits
}

func NewBoardService(boards repository.BoardStore, content repository.ContentStore, limits validation.Limits) *BoardService {
	return &BoardService{boards: boards, content: content, limits: limits}
}

// CreateBoard is restricted to account principals.
func (s *BoardService) CreateBoard(ctx context.Context, principal models.Principal, in CreateBoardInput) (*models.Board, []string, error) {
	if _, ok := principal.AccountID(); !ok {
		return nil, nil, models.NewForbiddenError("Only signed-in accounts can create boards")
	}
	name, err := s.limits.BoardName(in.Name)
	if err != nil {
		return nil, nil, err
	}
	description, err := s.limits.BoardDescription(in.Description)
	if err != nil {
		return nil, nil, err
	}
	style, err := models.ParseStyle(in.Style)
	if err != nil {
		return nil, nil, err
	}

	board := &models.Board{
		Name:        name,
		Description: description,
		Style:       style,
		Creator:     principal,
		IsActive:    true,
	}
	if err := s.boards.InsertBoard(ctx, board); err != nil {
		return nil, nil, err
	}
	return board, []string{cache.BoardKey(board.ID)}, nil
}

// CreatePost adds a post to an active board. The post inherits the board style.
func (s *BoardService) CreatePost(ctx context.Context, principal models.Principal, in CreatePostInput) (*models.Content, []string, error) {
	if !principal.Valid() {
		return nil, nil, models.NewValidationError("principal is required")
	}
	title, err := s.limits.PostTitle(in.Title)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.limits.PostBody(in.Body)
	if err != nil {
		return nil, nil, err
	}

	board, err := s.boards.GetBoard(ctx, in.BoardID)
	if err != nil {
		return nil, nil, err
	}
	if !board.IsActive {
		return nil, nil, models.NewNotFoundError("board", in.BoardID)
	}

	post := &models.Post{
		BoardID: board.ID,
		Title:   title,
		Body:    body,
		Style:   board.Style,
		Author:  principal,
	}
	if err := s.boards.InsertPost(ctx, post); err != nil {
		return nil, nil, err
	}
	content := models.ContentFromPost(post)
	return content, invalidationKeys(content), nil
}

// RecordView bumps view_count. Views do not invalidate caches.
func (s *BoardService) RecordView(ctx context.Context, postID uint) error {
	return s.content.ApplyCounterDelta(ctx, models.PostRef(postID), models.CounterViews, 1)
}

// GetContent returns any item, removed ones included, with counters as stored.
func (s *BoardService) GetContent(ctx context.Context, ref models.ContentRef) (*models.Content, error) {
	return s.content.GetContent(ctx, ref)
}
