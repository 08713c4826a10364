package repository

import (
	"context"
	"errors"
	"time"

	"agora/internal/models"
	"agora/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// contentStore implements ContentStore on gorm.
type contentStore struct {
	db *gorm.DB
}

// NewContentStore creates a new gorm-backed content store.
func NewContentStore(db *gorm.DB) ContentStore {
	return &contentStore{db: db}
}

func (s *contentStore) GetContent(ctx context.Context, ref models.ContentRef) (*models.Content, error) {
	ctx, span := observability.StartStoreSpan(ctx, "GetContent", string(ref.Type))
	defer span.End()

	switch ref.Type {
	case models.ContentPost:
		var post models.Post
		if err := s.db.WithContext(ctx).First(&post, ref.ID).Error; err != nil {
			return nil, notFoundOr("GetContent", ref, err)
		}
		return models.ContentFromPost(&post), nil
	case models.ContentComment:
		var comment models.Comment
		if err := s.db.WithContext(ctx).First(&comment, ref.ID).Error; err != nil {
			return nil, notFoundOr("GetContent", ref, err)
		}
		return models.ContentFromComment(&comment), nil
	default:
		_, err := contentTable(ref.Type)
		return nil, err
	}
}

func (s *contentStore) GetEdge(ctx context.Context, ref models.ContentRef, principal models.Principal) (*models.EngagementEdge, error) {
	var edge models.EngagementEdge
	err := s.db.WithContext(ctx).
		Where("content_type = ? AND content_id = ? AND principal_kind = ? AND principal_ref = ?",
			ref.Type, ref.ID, principal.Kind, principal.Ref).
		Take(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError("GetEdge", err)
	}
	return &edge, nil
}

func (s *contentStore) ApplyEdgeTransition(ctx context.Context, t models.EdgeTransition) error {
	ctx, span := observability.StartStoreSpan(ctx, "ApplyEdgeTransition", models.EngagementEdge{}.TableName())
	defer span.End()
	defer observability.TrackQuery("edge_transition", string(t.Ref.Type))()

	if t.From == nil && t.To == nil {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := edgeStatement(tx, t)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewConflictError("engagement edge changed concurrently", nil)
		}
		if t.Delta == 0 {
			return nil
		}
		return applyCounterDelta(tx, t.Ref, t.Counter, t.Delta)
	})
	return translateError("ApplyEdgeTransition", err)
}

// edgeStatement issues the conditional insert, delete or update for t.
func edgeStatement(tx *gorm.DB, t models.EdgeTransition) *gorm.DB {
	owner := tx.Where("content_type = ? AND content_id = ? AND principal_kind = ? AND principal_ref = ?",
		t.Ref.Type, t.Ref.ID, t.Principal.Kind, t.Principal.Ref)

	switch {
	case t.From == nil:
		edge := &models.EngagementEdge{
			ContentType:   t.Ref.Type,
			ContentID:     t.Ref.ID,
			PrincipalKind: t.Principal.Kind,
			PrincipalRef:  t.Principal.Ref,
			Direction:     *t.To,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(edge)
	case t.To == nil:
		return owner.Where("direction = ?", *t.From).Delete(&models.EngagementEdge{})
	default:
		return owner.Model(&models.EngagementEdge{}).
			Where("direction = ?", *t.From).
			Updates(map[string]interface{}{"direction": *t.To, "updated_at": time.Now()})
	}
}

func (s *contentStore) ApplyCounterDelta(ctx context.Context, ref models.ContentRef, field models.CounterField, delta int64) error {
	defer observability.TrackQuery("counter_delta", string(ref.Type))()
	return translateError("ApplyCounterDelta", applyCounterDelta(s.db.WithContext(ctx), ref, field, delta))
}

func (s *contentStore) UpdateBody(ctx context.Context, ref models.ContentRef, title *string, body string, at time.Time) error {
	table, err := contentTable(ref.Type)
	if err != nil {
		return err
	}

	columns := map[string]interface{}{"body": body, "updated_at": at}
	if title != nil && ref.Type == models.ContentPost {
		columns["title"] = *title
	}

	res := s.db.WithContext(ctx).Table(table).
		Where("id = ? AND is_deleted = ?", ref.ID, false).
		UpdateColumns(columns)
	if res.Error != nil {
		return translateError("UpdateBody", res.Error)
	}
	if res.RowsAffected == 0 {
		return translateError("UpdateBody", models.NewNotFoundError(string(ref.Type), ref.ID))
	}
	return nil
}

func (s *contentStore) SetDeleted(ctx context.Context, ref models.ContentRef, at time.Time) error {
	ctx, span := observability.StartStoreSpan(ctx, "SetDeleted", string(ref.Type))
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch ref.Type {
		case models.ContentPost:
			var post models.Post
			if err := tx.Select("id", "board_id").Where("id = ? AND is_deleted = ?", ref.ID, false).Take(&post).Error; err != nil {
				return recordMissing(ref, err)
			}
			if err := markDeleted(tx, models.Post{}.TableName(), ref, at); err != nil {
				return err
			}
			return tx.Model(&models.Board{}).
				Where("id = ? AND post_count > 0", post.BoardID).
				UpdateColumn("post_count", gorm.Expr("post_count - 1")).Error
		case models.ContentComment:
			var comment models.Comment
			if err := tx.Select("id", "post_id").Where("id = ? AND is_deleted = ?", ref.ID, false).Take(&comment).Error; err != nil {
				return recordMissing(ref, err)
			}
			if err := markDeleted(tx, models.Comment{}.TableName(), ref, at); err != nil {
				return err
			}
			// A removed post keeps its counters frozen.
			return tx.Model(&models.Post{}).
				Where("id = ? AND is_deleted = ? AND comment_count > 0", comment.PostID, false).
				UpdateColumn("comment_count", gorm.Expr("comment_count - 1")).Error
		default:
			_, err := contentTable(ref.Type)
			return err
		}
	})
	return translateError("SetDeleted", err)
}

// markDeleted flips is_deleted with a compare-and-swap so two concurrent removals
// decrement the container only once. updated_at is left alone: removal is not an edit.
func markDeleted(tx *gorm.DB, table string, ref models.ContentRef, at time.Time) error {
	res := tx.Table(table).
		Where("id = ? AND is_deleted = ?", ref.ID, false).
		UpdateColumns(map[string]interface{}{"is_deleted": true, "removed_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError(string(ref.Type), ref.ID)
	}
	return nil
}

func (s *contentStore) InsertComment(ctx context.Context, comment *models.Comment) error {
	ctx, span := observability.StartStoreSpan(ctx, "InsertComment", models.Comment{}.TableName())
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyCounterDelta(tx, models.PostRef(comment.PostID), models.CounterComments, 1); err != nil {
			return err
		}
		return tx.Create(comment).Error
	})
	return translateError("InsertComment", err)
}

func (s *contentStore) ListCommentsByPost(ctx context.Context, postID uint) ([]*models.Comment, error) {
	defer observability.TrackQuery("list", models.Comment{}.TableName())()

	var comments []*models.Comment
	err := s.db.WithContext(ctx).
		Where("post_id = ? AND is_deleted = ?", postID, false).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, translateError("ListCommentsByPost", err)
	}
	return comments, nil
}

func notFoundOr(op string, ref models.ContentRef, err error) error {
	return translateError(op, recordMissing(ref, err))
}

// recordMissing turns gorm's ErrRecordNotFound into a NotFound error naming ref.
func recordMissing(ref models.ContentRef, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(string(ref.Type), ref.ID)
	}
	return err
}
