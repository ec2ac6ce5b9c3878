package database

import (
	"fmt"

	"community-platform/config"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OpenMemory opens a migrated, private in-memory sqlite database. A single connection
// keeps the shared-cache database alive and serialises writers.
func OpenMemory() (*gorm.DB, error) {
	db, err := Open(config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = Close(db)
		return nil, err
	}
	return db, nil
}
