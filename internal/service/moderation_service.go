package service

import (
	"context"
	"log/slog"
	"time"

	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/repository"
	"agora/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// EditInput replaces the body of a post or comment. Title applies to posts only;
// nil keeps the current title.
type EditInput struct {
	Body  string  `json:"body"`
	Title *string `json:"title,omitempty"`
}

// ModerationService enforces ownership for edits and removals.
type ModerationService struct {
	store  repository.ContentStore
	limits validation.Limits
	now    func() time.Time
}

func NewModerationService(store repository.ContentStore, limits validation.Limits) *ModerationService {
	return &ModerationService{store: store, limits: limits, now: time.Now}
}

// Authorize returns the live item when principal owns it. Missing and removed
// items are NotFound; items owned by anyone else are Forbidden.
func (s *ModerationService) Authorize(ctx context.Context, ref models.ContentRef, principal models.Principal) (*models.Content, error) {
	c, err := s.store.GetContent(ctx, ref)
	if err != nil {
		return nil, err
	}
	if c.IsDeleted {
		return nil, models.NewNotFoundError(string(ref.Type), ref.ID)
	}
	if !c.Author.Equal(principal) {
		return nil, models.NewForbiddenError("You can only modify your own " + string(ref.Type))
	}
	return c, nil
}

func (s *ModerationService) normalizeEdit(ref models.ContentRef, in EditInput) (body string, title *string, err error) {
	switch ref.Type {
	case models.ContentPost:
		if body, err = s.limits.PostBody(in.Body); err != nil {
			return "", nil, err
		}
		if in.Title != nil {
			t, err := s.limits.PostTitle(*in.Title)
			if err != nil {
				return "", nil, err
			}
			title = &t
		}
		return body, title, nil
	case models.ContentComment:
		if in.Title != nil {
			return "", nil, models.NewValidationError("Comments have no title")
		}
		body, err = s.limits.CommentBody(in.Body)
		return body, nil, err
	default:
		return "", nil, models.NewValidationError("unknown content type")
	}
}

// Edit replaces the body (and title) of an owned item and stamps updated_at.
// An edit that changes nothing after normalization writes nothing and returns
// no invalidation keys.
func (s *ModerationService) Edit(ctx context.Context, ref models.ContentRef, principal models.Principal, in EditInput) (*models.Content, []string, error) {
	ctx, span := observability.StartSpan(ctx, "moderation", "Edit", attribute.String("content", ref.String()))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	body, title, err := s.normalizeEdit(ref, in)
	if err != nil {
		return nil, nil, err
	}

	current, err := s.Authorize(ctx, ref, principal)
	if err != nil {
		return nil, nil, err
	}
	if body == current.Body && (title == nil || *title == current.Title) {
		observability.ModerationActions.WithLabelValues("edit_noop", string(ref.Type)).Inc()
		return current, nil, nil
	}

	if err = s.store.UpdateBody(ctx, ref, title, body, s.now()); err != nil {
		return nil, nil, err
	}
	updated, err := s.store.GetContent(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	observability.ModerationActions.WithLabelValues("edit", string(ref.Type)).Inc()
	observability.Logger.DebugContext(ctx, "content edited", slog.String("content", ref.String()))
	return updated, invalidationKeys(updated), nil
}

// Remove soft-deletes an owned item. Its edges and counters stay as they were.
func (s *ModerationService) Remove(ctx context.Context, ref models.ContentRef, principal models.Principal) (*models.Content, []string, error) {
	ctx, span := observability.StartSpan(ctx, "moderation", "Remove", attribute.String("content", ref.String()))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if _, err = s.Authorize(ctx, ref, principal); err != nil {
		return nil, nil, err
	}
	if err = s.store.SetDeleted(ctx, ref, s.now()); err != nil {
		return nil, nil, err
	}
	removed, err := s.store.GetContent(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	observability.ModerationActions.WithLabelValues("remove", string(ref.Type)).Inc()
	observability.Logger.DebugContext(ctx, "content removed", slog.String("content", ref.String()))
	return removed, removalKeys(removed), nil
}
