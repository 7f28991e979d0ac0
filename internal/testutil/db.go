// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"librarydesk/internal/database"
	"librarydesk/internal/models"
	"librarydesk/internal/pkg/logger"
)

// NewDB returns a migrated in-memory sqlite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	return NewDBWithLogger(t, logger.Nop())
}

// NewDBWithLogger is NewDB with gorm's own log lines sent to log.
func NewDBWithLogger(t *testing.T, log *logger.Logger) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(database.Options{
		DSN:          fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared&_foreign_keys=on", name),
		MaxOpenConns: 1,
		Migrate:      true,
		Logger:       log,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SeedBook inserts a book with the given copy counts.
func SeedBook(t *testing.T, db *gorm.DB, title, isbn string, total, available int) *models.Book {
	t.Helper()
	book := &models.Book{
		Title:           title,
		Author:          "Test Author",
		ISBN:            isbn,
		TotalCopies:     total,
		AvailableCopies: available,
	}
	require.NoError(t, db.Create(book).Error)
	return book
}
