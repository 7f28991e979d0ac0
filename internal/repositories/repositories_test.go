package repositories

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"librarydesk/internal/models"
	"librarydesk/internal/testutil"
)

var t0 = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func TestAdjustAvailableCopies_StaysWithinBounds(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewBookRepository(db)
	book := testutil.SeedBook(t, db, "Dune", "9780441172719", 2, 1)

	ok, err := repo.AdjustAvailableCopies(nil, book.ID, -1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AdjustAvailableCopies(nil, book.ID, -1)
	require.NoError(t, err)
	assert.False(t, ok, "must not go below zero")

	ok, err = repo.AdjustAvailableCopies(nil, book.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AdjustAvailableCopies(nil, book.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok, "must not exceed total copies")

	got, err := repo.GetByID(nil, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableCopies)
}

func TestAdjustAvailableCopies_UnknownBook(t *testing.T) {
	db := testutil.NewDB(t)

	ok, err := NewBookRepository(db).AdjustAvailableCopies(nil, uuid.New(), 1)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBookRepository_Lookups(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewBookRepository(db)
	testutil.SeedBook(t, db, "The Hobbit", "9780547928227", 1, 1)
	dune := testutil.SeedBook(t, db, "Dune", "9780441172719", 2, 2)

	got, err := repo.GetByISBN(nil, "9780441172719")
	require.NoError(t, err)
	assert.Equal(t, dune.ID, got.ID)

	_, err = repo.GetByISBN(nil, "0000000000000")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	books, err := repo.List(nil)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Dune", books[0].Title)

	_, err = repo.Search(nil, "publisher", "x")
	assert.ErrorIs(t, err, ErrUnknownSearchField)
}

func TestBookRepository_SearchTreatsWildcardsLiterally(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewBookRepository(db)
	testutil.SeedBook(t, db, "Dune", "9780441172719", 1, 1)
	testutil.SeedBook(t, db, "100% Pure_Gold", "9780547928227", 1, 1)

	for _, tc := range []struct {
		term string
		want []string
	}{
		{"%", []string{"100% Pure_Gold"}},
		{"_", []string{"100% Pure_Gold"}},
		{"0% p", []string{"100% Pure_Gold"}},
		{"d_ne", nil},
		{"du%", nil},
		{"DUNE", []string{"Dune"}},
	} {
		books, err := repo.Search(nil, "title", tc.term)
		require.NoError(t, err, tc.term)
		var titles []string
		for _, b := range books {
			titles = append(titles, b.Title)
		}
		assert.Equal(t, tc.want, titles, tc.term)
	}
}

func TestLoanRepository_ActiveLoanLifecycle(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewLoanRepository(db)
	book := testutil.SeedBook(t, db, "Dune", "9780441172719", 2, 2)

	rec := &models.BorrowRecord{PatronID: "123456", BookID: book.ID, BorrowDate: t0, DueDate: t0.AddDate(0, 0, 14)}
	require.NoError(t, repo.Create(nil, rec))

	n, err := repo.CountActive(nil, "123456")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := repo.FindActiveForUpdate(nil, "123456", book.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)

	marked, err := repo.MarkReturned(nil, rec.ID, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = repo.MarkReturned(nil, rec.ID, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, marked, "a returned record is never updated again")

	_, err = repo.FindActive(nil, "123456", book.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	n, err = repo.CountActive(nil, "123456")
	require.NoError(t, err)
	assert.Zero(t, n)

	history, err := repo.ListByPatron(nil, "123456")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ReturnDate)
}

func TestLoanRepository_OneActiveLoanPerPatronAndBook(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewLoanRepository(db)
	book := testutil.SeedBook(t, db, "Dune", "9780441172719", 2, 2)

	require.NoError(t, repo.Create(nil, &models.BorrowRecord{PatronID: "123456", BookID: book.ID, BorrowDate: t0, DueDate: t0.AddDate(0, 0, 14)}))
	err := repo.Create(nil, &models.BorrowRecord{PatronID: "123456", BookID: book.ID, BorrowDate: t0, DueDate: t0.AddDate(0, 0, 14)})
	assert.Error(t, err)

	require.NoError(t, repo.Create(nil, &models.BorrowRecord{PatronID: "654321", BookID: book.ID, BorrowDate: t0, DueDate: t0.AddDate(0, 0, 14)}))
}

func TestLoanRepository_ListActiveByPatronPreloadsBook(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewLoanRepository(db)
	dune := testutil.SeedBook(t, db, "Dune", "9780441172719", 2, 2)
	hobbit := testutil.SeedBook(t, db, "The Hobbit", "9780547928227", 1, 1)

	require.NoError(t, repo.Create(nil, &models.BorrowRecord{PatronID: "123456", BookID: hobbit.ID, BorrowDate: t0.Add(time.Hour), DueDate: t0.AddDate(0, 0, 15)}))
	require.NoError(t, repo.Create(nil, &models.BorrowRecord{PatronID: "123456", BookID: dune.ID, BorrowDate: t0, DueDate: t0.AddDate(0, 0, 14)}))
	require.NoError(t, repo.LockPatron(nil, "123456"))

	active, err := repo.ListActiveByPatron(nil, "123456")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Dune", active[0].Book.Title)
	assert.Equal(t, "The Hobbit", active[1].Book.Title)
}
