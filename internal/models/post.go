// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Board is a container of posts. Its style is inherited by every post created in it.
type Board struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"size:100;not null;index" json:"name"`
	Description string     `gorm:"size:500" json:"description"`
	Style       Style      `gorm:"size:8;not null;default:'like'" json:"style"`
	PostCount   uint32     `gorm:"not null;default:0" json:"post_count"`
	Creator     Principal  `gorm:"embedded;embeddedPrefix:creator_" json:"-"`
	IsActive    bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	RemovedAt   *time.Time `json:"removed_at,omitempty"`
}

// TableName specifies the table name for GORM.
func (Board) TableName() string {
	return "boards"
}

// Post represents a post on a board.
type Post struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	BoardID      uint       `gorm:"not null;index" json:"board_id"`
	Title        string     `gorm:"size:200;not null" json:"title"`
	Body         string     `gorm:"type:text;not null" json:"body"`
	Style        Style      `gorm:"size:8;not null;default:'like'" json:"style"`
	LikeCount    uint32     `gorm:"not null;default:0" json:"like_count"`
	VoteCount    int64      `gorm:"not null;default:0" json:"vote_count"`
	CommentCount uint32     `gorm:"not null;default:0" json:"comment_count"`
	ViewCount    uint64     `gorm:"not null;default:0" json:"view_count"`
	Author       Principal  `gorm:"embedded;embeddedPrefix:author_" json:"-"`
	IsDeleted    bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	RemovedAt    *time.Time `json:"removed_at,omitempty"`
}

// TableName specifies the table name for GORM.
func (Post) TableName() string {
	return "posts"
}

// Comment represents a comment on a post. A comment whose ParentCommentID is set
// is a reply and can never be a parent itself.
type Comment struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	PostID          uint       `gorm:"not null;index:idx_comment_post_created,priority:1" json:"post_id"`
	ParentCommentID *uint      `gorm:"index" json:"parent_comment_id,omitempty"`
	Body            string     `gorm:"type:text;not null" json:"body"`
	LikeCount       uint32     `gorm:"not null;default:0" json:"like_count"`
	Author          Principal  `gorm:"embedded;embeddedPrefix:author_" json:"-"`
	IsDeleted       bool       `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt       time.Time  `gorm:"index:idx_comment_post_created,priority:2" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	RemovedAt       *time.Time `json:"removed_at,omitempty"`
}

// TableName specifies the table name for GORM.
func (Comment) TableName() string {
	return "comments"
}

// IsReply reports whether the comment hangs under another comment.
func (c *Comment) IsReply() bool {
	return c.ParentCommentID != nil
}

// Edited reports whether the comment body changed after creation.
func (c *Comment) Edited() bool {
	return !c.UpdatedAt.Equal(c.CreatedAt)
}

// CommentView is the rendered form of a live comment.
type CommentView struct {
	ID              uint       `json:"id"`
	PostID          uint       `json:"post_id"`
	ParentCommentID *uint      `json:"parent_comment_id,omitempty"`
	Body            string     `json:"body"`
	LikeCount       uint32     `json:"like_count"`
	Author          AuthorView `json:"author"`
	Edited          bool       `json:"edited"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewCommentView renders c.
func NewCommentView(c *Comment) CommentView {
	return CommentView{
		ID:              c.ID,
		PostID:          c.PostID,
		ParentCommentID: c.ParentCommentID,
		Body:            c.Body,
		LikeCount:       c.LikeCount,
		Author:          c.Author.View(),
		Edited:          c.Edited(),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// ThreadedComment is a root comment with its direct replies.
type ThreadedComment struct {
	CommentView
	Replies []CommentView `json:"replies"`
}

// Content is the type-independent view of a post or comment that the engines
// operate on. Removed items stay readable with their counters frozen.
type Content struct {
	Ref             ContentRef `json:"ref"`
	BoardID         uint       `json:"board_id,omitempty"`
	PostID          uint       `json:"post_id"`
	ParentCommentID *uint      `json:"parent_comment_id,omitempty"`
	Author          Principal  `json:"-"`
	Byline          AuthorView `json:"author"`
	Title           string     `json:"title,omitempty"`
	Body            string     `json:"body"`
	Style           Style      `json:"style"`
	LikeCount       uint32     `json:"like_count"`
	VoteCount       int64      `json:"vote_count"`
	CommentCount    uint32     `json:"comment_count"`
	ViewCount       uint64     `json:"view_count"`
	IsDeleted       bool       `json:"is_deleted"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Edited reports whether updated_at moved past created_at.
func (c *Content) Edited() bool {
	return !c.UpdatedAt.Equal(c.CreatedAt)
}

// Counter returns the current value of the given denormalized counter.
func (c *Content) Counter(field CounterField) int64 {
	switch field {
	case CounterLikes:
		return int64(c.LikeCount)
	case CounterVotes:
		return c.VoteCount
	case CounterComments:
		return int64(c.CommentCount)
	case CounterViews:
		return int64(c.ViewCount)
	default:
		return 0
	}
}

// ContentFromPost builds the engine view of a post.
func ContentFromPost(p *Post) *Content {
	return &Content{
		Ref:          PostRef(p.ID),
		BoardID:      p.BoardID,
		PostID:       p.ID,
		Author:       p.Author,
		Byline:       p.Author.View(),
		Title:        p.Title,
		Body:         p.Body,
		Style:        p.Style,
		LikeCount:    p.LikeCount,
		VoteCount:    p.VoteCount,
		CommentCount: p.CommentCount,
		ViewCount:    p.ViewCount,
		IsDeleted:    p.IsDeleted,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// ContentFromComment builds the engine view of a comment. Comments are always like-style.
func ContentFromComment(c *Comment) *Content {
	return &Content{
		Ref:             CommentRef(c.ID),
		PostID:          c.PostID,
		ParentCommentID: c.ParentCommentID,
		Author:          c.Author,
		Byline:          c.Author.View(),
		Body:            c.Body,
		Style:           StyleLike,
		LikeCount:       c.LikeCount,
		IsDeleted:       c.IsDeleted,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}
