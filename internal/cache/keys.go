package cache

import (
	"fmt"
	"time"
)

const (
	PostKeyPrefix         = "post:%d"
	PostCommentsKeyPrefix = "post:%d:comments"
	CommentKeyPrefix      = "comment:%d"
	BoardKeyPrefix        = "board:%d"
)

// InvalidationChannel is the Redis pub/sub channel invalidation events are published on.
const InvalidationChannel = "agora:invalidations"

// DefaultCommentsTTL applies when no TTL is configured.
const DefaultCommentsTTL = time.Minute

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

// PostCommentsKey caches the threaded comment listing of a post.
func PostCommentsKey(postID uint) string {
	return fmt.Sprintf(PostCommentsKeyPrefix, postID)
}

func CommentKey(commentID uint) string {
	return fmt.Sprintf(CommentKeyPrefix, commentID)
}

func BoardKey(boardID uint) string {
	return fmt.Sprintf(BoardKeyPrefix, boardID)
}
