package repositories

import (
	"errors"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"librarydesk/internal/models"
)

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	List(db *gorm.DB) ([]models.Book, error)
	Search(db *gorm.DB, field, term string) ([]models.Book, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByISBN(db *gorm.DB, isbn string) (*models.Book, error)
	AdjustAvailableCopies(db *gorm.DB, bookID uuid.UUID, delta int) (bool, error)
}

type LoanRepository interface {
	Create(db *gorm.DB, record *models.BorrowRecord) error
	LockPatron(db *gorm.DB, patronID string) error
	CountActive(db *gorm.DB, patronID string) (int, error)
	FindActive(db *gorm.DB, patronID string, bookID uuid.UUID) (*models.BorrowRecord, error)
	FindActiveForUpdate(db *gorm.DB, patronID string, bookID uuid.UUID) (*models.BorrowRecord, error)
	MarkReturned(db *gorm.DB, recordID uuid.UUID, returnedAt time.Time) (bool, error)
	ListActiveByPatron(db *gorm.DB, patronID string) ([]models.BorrowRecord, error)
	ListByPatron(db *gorm.DB, patronID string) ([]models.BorrowRecord, error)
}

// ErrUnknownSearchField is returned by Search for a field other than title, author or isbn.
var ErrUnknownSearchField = errors.New("unknown search field")

// concrete implementations

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Order("title ASC").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

// likeEscaper makes LIKE wildcards in a search term match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Search matches title and author case-insensitively on a substring, and isbn exactly.
func (r *bookRepository) Search(db *gorm.DB, field, term string) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Book{})
	switch field {
	case "title", "author":
		q = q.Where("LOWER("+field+`) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(strings.ToLower(term))+"%")
	case "isbn":
		q = q.Where("isbn = ?", term)
	default:
		return nil, ErrUnknownSearchField
	}
	var books []models.Book
	if err := q.Order("title ASC").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByISBN(db *gorm.DB, isbn string) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "isbn = ?", isbn).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// AdjustAvailableCopies moves available_copies by delta in a single conditional
// statement. It reports false when the change would leave the counter outside
// [0, total_copies], in which case nothing is written.
func (r *bookRepository) AdjustAvailableCopies(db *gorm.DB, bookID uuid.UUID, delta int) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND available_copies + ? >= 0 AND available_copies + ? <= total_copies", bookID, delta, delta).
		UpdateColumn("available_copies", gorm.Expr("available_copies + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, record *models.BorrowRecord) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(record).Error
}

// LockPatron serialises loan changes for one patron until the surrounding
// transaction ends. Only postgres has transaction-scoped advisory locks; other
// dialects rely on their own write serialisation.
func (r *loanRepository) LockPatron(db *gorm.DB, patronID string) error {
	if db == nil {
		db = r.db
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte("patron:" + patronID))
	return db.Exec("SELECT pg_advisory_xact_lock(?)", int64(h.Sum64())).Error
}

func (r *loanRepository) CountActive(db *gorm.DB, patronID string) (int, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.BorrowRecord{}).
		Where("patron_id = ? AND return_date IS NULL", patronID).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *loanRepository) FindActive(db *gorm.DB, patronID string, bookID uuid.UUID) (*models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	return r.findActive(db, patronID, bookID)
}

func (r *loanRepository) FindActiveForUpdate(db *gorm.DB, patronID string, bookID uuid.UUID) (*models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	return r.findActive(db.Clauses(clause.Locking{Strength: "UPDATE"}), patronID, bookID)
}

// findActive picks the most recent active record so the choice is stable if
// the one-active-loan index was ever bypassed.
func (r *loanRepository) findActive(db *gorm.DB, patronID string, bookID uuid.UUID) (*models.BorrowRecord, error) {
	var record models.BorrowRecord
	err := db.
		Where("patron_id = ? AND book_id = ? AND return_date IS NULL", patronID, bookID).
		Order("borrow_date DESC, id DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *loanRepository) MarkReturned(db *gorm.DB, recordID uuid.UUID, returnedAt time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.BorrowRecord{}).
		Where("id = ? AND return_date IS NULL", recordID).
		Update("return_date", returnedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *loanRepository) ListActiveByPatron(db *gorm.DB, patronID string) ([]models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var records []models.BorrowRecord
	err := db.
		Preload("Book").
		Where("patron_id = ? AND return_date IS NULL", patronID).
		Order("due_date ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *loanRepository) ListByPatron(db *gorm.DB, patronID string) ([]models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var records []models.BorrowRecord
	if err := db.Where("patron_id = ?", patronID).Order("borrow_date DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
