package repository

import (
	"testing"

	"cartflow/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.OutboxEvent{},
		&model.ProcessedEvent{},
		&model.RejectedTask{},
		&model.FailedPlatformEvent{},
		&model.Product{},
	))
	return db
}
