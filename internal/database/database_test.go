package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"librarydesk/internal/models"
	"librarydesk/internal/pkg/logger"
)

func TestOpen_SQLiteWithMigrate(t *testing.T) {
	db, err := Open(Options{
		DSN:          "sqlite://file:database_open?mode=memory&cache=shared",
		MaxOpenConns: 1,
		Migrate:      true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	assert.True(t, db.Migrator().HasTable(&models.Book{}))
	assert.True(t, db.Migrator().HasTable(&models.BorrowRecord{}))
	assert.True(t, db.Migrator().HasIndex(&models.BorrowRecord{}, "uniq_active_loan"))
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestOpen_WithoutMigrate(t *testing.T) {
	db, err := Open(Options{DSN: "sqlite://file:database_nomigrate?mode=memory&cache=shared"})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	assert.False(t, db.Migrator().HasTable(&models.Book{}))
}

func TestOpen_GormLinesGoThroughLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db, err := Open(Options{
		DSN:          "sqlite://file:database_logger?mode=memory&cache=shared",
		MaxOpenConns: 1,
		Migrate:      true,
		Logger:       &logger.Logger{SugaredLogger: zap.New(core).Sugar()},
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	logs.TakeAll()

	var book models.Book
	err = db.Where("isbn = ?", "0000000000000").First(&book).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "record not found is an expected result, not a log line")

	err = db.Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "no_such_table")
	assert.Equal(t, "gorm", entries[0].ContextMap()["component"])
}
