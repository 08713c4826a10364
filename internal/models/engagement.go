package models

import (
	"fmt"
	"strconv"
	"time"
)

// Direction is the kind of engagement a principal records on content.
type Direction string

const (
	DirectionLike Direction = "like"
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Style decides which directions a piece of content accepts and which counter they move.
type Style string

const (
	// StyleLike content accepts a single "like" direction counted in like_count.
	StyleLike Style = "like"
	// StyleVote content accepts signed up/down votes counted in vote_count.
	StyleVote Style = "vote"
)

// CounterField names the denormalized column an engagement style maintains.
type CounterField string

const (
	CounterLikes    CounterField = "like_count"
	CounterVotes    CounterField = "vote_count"
	CounterComments CounterField = "comment_count"
	CounterViews    CounterField = "view_count"
	CounterPosts    CounterField = "post_count"
)

// ParseStyle validates a style name; empty defaults to StyleLike.
func ParseStyle(raw string) (Style, error) {
	switch Style(raw) {
	case "", StyleLike:
		return StyleLike, nil
	case StyleVote:
		return StyleVote, nil
	default:
		return "", NewValidationError(fmt.Sprintf("unknown engagement style %q", raw))
	}
}

// Supports reports whether d is a legal direction for content of this style.
func (s Style) Supports(d Direction) bool {
	switch s {
	case StyleLike:
		return d == DirectionLike
	case StyleVote:
		return d == DirectionUp || d == DirectionDown
	default:
		return false
	}
}

// Counter returns the column this style's edges are summed into.
func (s Style) Counter() CounterField {
	if s == StyleVote {
		return CounterVotes
	}
	return CounterLikes
}

// Weight is the counter contribution of a single edge in direction d.
func (d Direction) Weight() int64 {
	switch d {
	case DirectionLike, DirectionUp:
		return 1
	case DirectionDown:
		return -1
	default:
		return 0
	}
}

// ContentType distinguishes the two engageable tables.
type ContentType string

const (
	ContentPost    ContentType = "post"
	ContentComment ContentType = "comment"
)

// ParseContentType validates a content type segment from a route or CLI flag.
func ParseContentType(raw string) (ContentType, error) {
	switch ContentType(raw) {
	case ContentPost, ContentComment:
		return ContentType(raw), nil
	default:
		return "", NewValidationError(fmt.Sprintf("unknown content type %q", raw))
	}
}

// ContentRef identifies a single post or comment.
type ContentRef struct {
	Type ContentType `json:"type"`
	ID   uint        `json:"id"`
}

// PostRef and CommentRef are shorthands for building refs.
func PostRef(id uint) ContentRef    { return ContentRef{Type: ContentPost, ID: id} }
func CommentRef(id uint) ContentRef { return ContentRef{Type: ContentComment, ID: id} }

func (r ContentRef) String() string {
	return string(r.Type) + ":" + strconv.FormatUint(uint64(r.ID), 10)
}

// EngagementEdge is one principal's recorded like or vote on one content item.
// The unique index guarantees at most one edge per (content, principal).
type EngagementEdge struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	ContentType   ContentType   `gorm:"size:16;not null;uniqueIndex:idx_edge_principal,priority:1" json:"content_type"`
	ContentID     uint          `gorm:"not null;uniqueIndex:idx_edge_principal,priority:2;index:idx_edge_content" json:"content_id"`
	PrincipalKind PrincipalKind `gorm:"size:16;not null;uniqueIndex:idx_edge_principal,priority:3" json:"principal_kind"`
	PrincipalRef  string        `gorm:"size:64;not null;uniqueIndex:idx_edge_principal,priority:4" json:"principal_ref"`
	Direction     Direction     `gorm:"size:8;not null" json:"direction"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (EngagementEdge) TableName() string {
	return "engagement_edges"
}

// Principal returns the edge owner as a Principal value.
func (e EngagementEdge) Principal() Principal {
	return Principal{Kind: e.PrincipalKind, Ref: e.PrincipalRef}
}

// Ref returns the content the edge points at.
func (e EngagementEdge) Ref() ContentRef {
	return ContentRef{Type: e.ContentType, ID: e.ContentID}
}

// EdgeTransition is one compare-and-swap step of the toggle state machine.
// From is the edge direction the caller observed (nil = no edge) and To the
// desired one (nil = remove). Delta is applied to Counter in the same transaction.
type EdgeTransition struct {
	Ref       ContentRef
	Principal Principal
	From      *Direction
	To        *Direction
	Counter   CounterField
	Delta     int64
}

// EdgeState is the per-(content, principal) state after a toggle.
type EdgeState struct {
	HasEdge   bool      `json:"has_edge"`
	Direction Direction `json:"direction,omitempty"`
}

func (s EdgeState) String() string {
	if !s.HasEdge {
		return "none"
	}
	return string(s.Direction)
}

// InvalidationEvent is published after a mutation so readers can drop cached copies.
type InvalidationEvent struct {
	Keys []string  `json:"keys"`
	At   time.Time `json:"at"`
}
