package database

import (
	"testing"

	"community-platform/config"
	"community-platform/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemoryMigrates(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer Close(db)

	for _, table := range []any{
		&models.Profile{}, &models.Supporter{}, &models.Badge{}, &models.UserBadge{},
		&models.Activity{}, &models.Vote{}, &models.UserVote{}, &models.Wish{},
	} {
		assert.True(t, db.Migrator().HasTable(table))
	}

	// migrations are re-runnable
	require.NoError(t, Migrate(db))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}
