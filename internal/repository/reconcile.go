package repository

import (
	"context"
	"fmt"
	"sort"

	"agora/internal/models"

	"gorm.io/gorm"
)

// CounterDrift is one denormalized counter whose stored value disagrees with
// the value recomputed from the underlying rows.
type CounterDrift struct {
	Table   string              `json:"table" yaml:"table"`
	ID      uint                `json:"id" yaml:"id"`
	Counter models.CounterField `json:"counter" yaml:"counter"`
	Stored  int64               `json:"stored" yaml:"stored"`
	Actual  int64               `json:"actual" yaml:"actual"`
}

func (d CounterDrift) String() string {
	return fmt.Sprintf("%s:%d %s stored=%d actual=%d", d.Table, d.ID, d.Counter, d.Stored, d.Actual)
}

// Reconciler recomputes counters from edges and child rows.
type Reconciler struct {
	db *gorm.DB
}

// NewReconciler creates a Reconciler on db.
func NewReconciler(db *gorm.DB) *Reconciler {
	return &Reconciler{db: db}
}

type edgeSum struct {
	ContentType models.ContentType
	ContentID   uint
	Direction   models.Direction
	Total       int64
}

type counterRow struct {
	ID           uint
	Style        models.Style
	LikeCount    int64
	VoteCount    int64
	CommentCount int64
	PostCount    int64
	IsDeleted    bool
}

type childCount struct {
	ParentID uint
	Total    int64
}

// FindDrift scans every counter and returns those that do not match their source rows,
// ordered by table then id.
func (r *Reconciler) FindDrift(ctx context.Context) ([]CounterDrift, error) {
	db := r.db.WithContext(ctx)

	var sums []edgeSum
	if err := db.Model(&models.EngagementEdge{}).
		Select("content_type, content_id, direction, COUNT(*) AS total").
		Group("content_type, content_id, direction").
		Scan(&sums).Error; err != nil {
		return nil, translateError("FindDrift", err)
	}

	engagement := make(map[models.ContentRef]int64)
	for _, s := range sums {
		ref := models.ContentRef{Type: s.ContentType, ID: s.ContentID}
		engagement[ref] += s.Direction.Weight() * s.Total
	}

	var drift []CounterDrift

	var posts []counterRow
	if err := db.Model(&models.Post{}).
		Select("id, style, like_count, vote_count, comment_count, is_deleted").
		Scan(&posts).Error; err != nil {
		return nil, translateError("FindDrift", err)
	}
	liveComments, err := r.childCounts(db, &models.Comment{}, "post_id")
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		actual := engagement[models.PostRef(p.ID)]
		counter, stored := models.CounterLikes, p.LikeCount
		if p.Style == models.StyleVote {
			counter, stored = models.CounterVotes, p.VoteCount
		}
		if stored != actual {
			drift = append(drift, CounterDrift{Table: "posts", ID: p.ID, Counter: counter, Stored: stored, Actual: actual})
		}
		// Removed posts keep their comment_count frozen at removal time.
		if !p.IsDeleted && p.CommentCount != liveComments[p.ID] {
			drift = append(drift, CounterDrift{Table: "posts", ID: p.ID, Counter: models.CounterComments, Stored: p.CommentCount, Actual: liveComments[p.ID]})
		}
	}

	var comments []counterRow
	if err := db.Model(&models.Comment{}).
		Select("id, like_count").
		Scan(&comments).Error; err != nil {
		return nil, translateError("FindDrift", err)
	}
	for _, c := range comments {
		if actual := engagement[models.CommentRef(c.ID)]; c.LikeCount != actual {
			drift = append(drift, CounterDrift{Table: "comments", ID: c.ID, Counter: models.CounterLikes, Stored: c.LikeCount, Actual: actual})
		}
	}

	var boards []counterRow
	if err := db.Model(&models.Board{}).
		Select("id, post_count").
		Scan(&boards).Error; err != nil {
		return nil, translateError("FindDrift", err)
	}
	livePosts, err := r.childCounts(db, &models.Post{}, "board_id")
	if err != nil {
		return nil, err
	}
	for _, b := range boards {
		if b.PostCount != livePosts[b.ID] {
			drift = append(drift, CounterDrift{Table: "boards", ID: b.ID, Counter: models.CounterPosts, Stored: b.PostCount, Actual: livePosts[b.ID]})
		}
	}

	sort.SliceStable(drift, func(i, j int) bool {
		if drift[i].Table != drift[j].Table {
			return drift[i].Table < drift[j].Table
		}
		return drift[i].ID < drift[j].ID
	})
	return drift, nil
}

func (r *Reconciler) childCounts(db *gorm.DB, model interface{}, parentColumn string) (map[uint]int64, error) {
	var rows []childCount
	if err := db.Model(model).
		Select(parentColumn+" AS parent_id, COUNT(*) AS total").
		Where("is_deleted = ?", false).
		Group(parentColumn).
		Scan(&rows).Error; err != nil {
		return nil, translateError("FindDrift", err)
	}
	out := make(map[uint]int64, len(rows))
	for _, row := range rows {
		out[row.ParentID] = row.Total
	}
	return out, nil
}

// Fix overwrites each drifted counter with its recomputed value, but only if the
// stored value is still the one FindDrift observed. It returns the number fixed.
func (r *Reconciler) Fix(ctx context.Context, drift []CounterDrift) (int, error) {
	fixed := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range drift {
			if !fixable(d) {
				return models.NewValidationError("cannot fix " + d.String())
			}
			column := string(d.Counter)
			res := tx.Table(d.Table).
				Where("id = ? AND "+column+" = ?", d.ID, d.Stored).
				UpdateColumn(column, d.Actual)
			if res.Error != nil {
				return res.Error
			}
			fixed += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, translateError("FixDrift", err)
	}
	return fixed, nil
}

func fixable(d CounterDrift) bool {
	switch d.Table {
	case "posts":
		return d.Counter == models.CounterLikes || d.Counter == models.CounterVotes || d.Counter == models.CounterComments
	case "comments":
		return d.Counter == models.CounterLikes
	case "boards":
		return d.Counter == models.CounterPosts
	default:
		return false
	}
}
