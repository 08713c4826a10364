package seed

import (
	"context"
	"fmt"

	"agora/internal/models"

	"gorm.io/gorm"
)

// BuiltInBoard is a permanent board created by the platform itself.
type BuiltInBoard struct {
	Name        string
	Description string
	Style       models.Style
}

// SystemPrincipal owns the built-in boards.
var SystemPrincipal = models.Account(1)

// BuiltInBoards defines the permanent boards present on every install.
var BuiltInBoards = []BuiltInBoard{
	{Name: "General", Description: "Anything that does not fit elsewhere.", Style: models.StyleLike},
	{Name: "Announcements", Description: "Platform news and updates.", Style: models.StyleLike},
	{Name: "Questions", Description: "Ask and vote on the best answers.", Style: models.StyleVote},
	{Name: "Feedback", Description: "Ideas and bug reports, ranked by the community.", Style: models.StyleVote},
}

// EnsureBuiltInBoards creates missing built-in boards and reactivates removed
// ones. It is safe to run on every boot and returns how many boards it created.
func EnsureBuiltInBoards(ctx context.Context, db *gorm.DB) (int, error) {
	created := 0
	for _, item := range BuiltInBoards {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var board models.Board
			res := tx.Where("name = ?", item.Name).Limit(1).Find(&board)
			if res.Error != nil {
				return res.Error
			}

			if res.RowsAffected == 0 {
				board = models.Board{
					Name:        item.Name,
					Description: item.Description,
					Style:       item.Style,
					Creator:     SystemPrincipal,
					IsActive:    true,
				}
				if err := tx.Create(&board).Error; err != nil {
					return err
				}
				created++
				return nil
			}

			// Style is fixed once posts exist; only the text and status are refreshed.
			return tx.Model(&models.Board{}).Where("id = ?", board.ID).Updates(map[string]any{
				"description": item.Description,
				"is_active":   true,
				"removed_at":  nil,
			}).Error
		})
		if err != nil {
			return created, fmt.Errorf("seed built-in board %s: %w", item.Name, err)
		}
	}
	return created, nil
}
