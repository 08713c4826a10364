package database

import "agora/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Board{},
		&models.Post{},
		&models.Comment{},
		&models.EngagementEdge{},
	}
}
