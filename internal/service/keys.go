package service

import (
	"agora/internal/cache"
	"agora/internal/models"
)

// invalidationKeys lists the cache keys a mutation of c makes stale: the item
// itself and the container whose aggregates or listing include it.
func invalidationKeys(c *models.Content) []string {
	switch c.Ref.Type {
	case models.ContentPost:
		return []string{cache.PostKey(c.Ref.ID), cache.BoardKey(c.BoardID)}
	case models.ContentComment:
		return []string{cache.CommentKey(c.Ref.ID), cache.PostKey(c.PostID), cache.PostCommentsKey(c.PostID)}
	default:
		return nil
	}
}

// removalKeys adds the listing of a removed post, which must stop being served.
func removalKeys(c *models.Content) []string {
	keys := invalidationKeys(c)
	if c.Ref.Type == models.ContentPost {
		keys = append(keys, cache.PostCommentsKey(c.Ref.ID))
	}
	return keys
}
