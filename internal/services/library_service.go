package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"librarydesk/internal/fees"
	"librarydesk/internal/models"
	"librarydesk/internal/pkg/logger"
	"librarydesk/internal/repositories"
)

// ─── Lending Constants ────────────────────────────────────────────────────────

const (
	// MaxActiveLoans is the number of unreturned books a patron may hold at once.
	MaxActiveLoans = 5

	MaxTitleLength  = 200
	MaxAuthorLength = 100
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrInvalidPatronID is returned when a patron id is not exactly six digits.
	ErrInvalidPatronID = errors.New("invalid patron id")

	// ErrBookNotFound is returned when the requested book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrNotAvailable is returned when every copy of a book is on loan.
	ErrNotAvailable = errors.New("no available copies")

	// ErrLoanLimitReached is returned when the patron already holds MaxActiveLoans books.
	ErrLoanLimitReached = errors.New("loan limit reached")

	// ErrAlreadyBorrowed is returned when the patron already has an active loan of the book.
	ErrAlreadyBorrowed = errors.New("book already on loan to patron")

	// ErrNoActiveLoan is returned when a return is attempted without an active loan.
	ErrNoActiveLoan = errors.New("no active loan")

	// ErrCopyCountMismatch is returned when a return would push available copies above the total.
	ErrCopyCountMismatch = errors.New("available copies would exceed total copies")
)

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService defines the lending desk operations. Lending operations never
// return errors; every failure is reported through the returned Result.
type LibraryService interface {
	AddBookToCatalog(ctx context.Context, title, author, isbn string, totalCopies int) models.Result
	GetBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error)
	ListBooks(ctx context.Context) ([]models.Book, error)
	SearchBooks(ctx context.Context, term, searchType string) ([]models.Book, error)

	BorrowBook(ctx context.Context, patronID string, bookID uuid.UUID) models.Result
	ReturnBook(ctx context.Context, patronID string, bookID uuid.UUID) models.Result
	CalculateLateFee(ctx context.Context, patronID string, bookID uuid.UUID) models.FeeQuote

	PatronStatusReport(ctx context.Context, patronID string) (*models.PatronReport, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	db       *gorm.DB
	bookRepo repositories.BookRepository
	loanRepo repositories.LoanRepository
	log      *logger.Logger
	now      func() time.Time
}

type Option func(*libraryService)

// WithClock replaces time.Now as the source of borrow, due and return times.
func WithClock(now func() time.Time) Option {
	return func(s *libraryService) { s.now = now }
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
func NewLibraryService(
	db *gorm.DB,
	bookRepo repositories.BookRepository,
	loanRepo repositories.LoanRepository,
	log *logger.Logger,
	opts ...Option,
) LibraryService {
	s := &libraryService{
		db:       db,
		bookRepo: bookRepo,
		loanRepo: loanRepo,
		log:      log.With("service", "LibraryService"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidPatronID reports whether id is a library card number: exactly six ASCII digits.
func ValidPatronID(id string) bool {
	return isDigits(id, 6)
}

// ─── Book Management ──────────────────────────────────────────────────────────

func (s *libraryService) AddBookToCatalog(ctx context.Context, title, author, isbn string, totalCopies int) models.Result {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	isbn = strings.TrimSpace(isbn)

	switch {
	case title == "":
		return invalid("Title is required.")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return invalid("Title must be less than 200 characters.")
	case author == "":
		return invalid("Author is required.")
	case utf8.RuneCountInString(author) > MaxAuthorLength:
		return invalid("Author must be less than 100 characters.")
	case !isDigits(isbn, 13):
		return invalid("ISBN must be exactly 13 digits (numbers only).")
	case totalCopies <= 0:
		return invalid("Total copies must be a positive integer.")
	}

	db := s.db.WithContext(ctx)
	if _, err := s.bookRepo.GetByISBN(db, isbn); err == nil {
		return rejected("A book with this ISBN already exists.")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Error("AddBookToCatalog: isbn lookup failed", "isbn", isbn, "error", err)
		return storageFailure("Database error occurred while adding the book.")
	}

	book := &models.Book{
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
	}
	if err := s.bookRepo.Create(db, book); err != nil {
		if isUniqueViolation(err) {
			return rejected("A book with this ISBN already exists.")
		}
		s.log.Error("AddBookToCatalog: failed to create book record", "isbn", isbn, "error", err)
		return storageFailure("Database error occurred while adding the book.")
	}
	s.log.Info("AddBookToCatalog: created book", "book_id", book.ID, "title", book.Title, "copies", totalCopies)
	return ok(fmt.Sprintf("Book %q has been successfully added to the catalog.", book.Title))
}

func (s *libraryService) GetBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(s.db.WithContext(ctx), bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return book, nil
}

// ListBooks returns the whole catalogue ordered by title.
func (s *libraryService) ListBooks(ctx context.Context) ([]models.Book, error) {
	return s.bookRepo.List(s.db.WithContext(ctx))
}

// SearchBooks matches term against title or author (partial, case-insensitive)
// or isbn (exact). An empty term or unknown search type matches nothing.
func (s *libraryService) SearchBooks(ctx context.Context, term, searchType string) ([]models.Book, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []models.Book{}, nil
	}
	books, err := s.bookRepo.Search(s.db.WithContext(ctx), strings.ToLower(searchType), term)
	if errors.Is(err, repositories.ErrUnknownSearchField) {
		return []models.Book{}, nil
	}
	return books, err
}

// ─── Borrow ───────────────────────────────────────────────────────────────────

// BorrowBook lends one copy of a book to a patron.
//
// The active-loan count check, the availability decrement and the record
// insert run in one transaction. The decrement is a conditional UPDATE, so two
// concurrent borrows of the last copy cannot both succeed, and per-patron
// locking keeps the count check and insert together.
func (s *libraryService) BorrowBook(ctx context.Context, patronID string, bookID uuid.UUID) models.Result {
	if !ValidPatronID(patronID) {
		return invalid("Invalid patron ID. Must be exactly 6 digits.")
	}

	var book *models.Book
	var record *models.BorrowRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.bookRepo.GetByID(tx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		book = b
		if b.AvailableCopies <= 0 {
			return ErrNotAvailable
		}

		if err := s.loanRepo.LockPatron(tx, patronID); err != nil {
			return err
		}
		active, err := s.loanRepo.CountActive(tx, patronID)
		if err != nil {
			return err
		}
		if active >= MaxActiveLoans {
			return ErrLoanLimitReached
		}
		if _, err := s.loanRepo.FindActive(tx, patronID, bookID); err == nil {
			return ErrAlreadyBorrowed
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		taken, err := s.bookRepo.AdjustAvailableCopies(tx, bookID, -1)
		if err != nil {
			return err
		}
		if !taken {
			// Another borrower took the last copy after our read.
			return ErrNotAvailable
		}

		now := s.now().UTC()
		record = &models.BorrowRecord{
			PatronID:   patronID,
			BookID:     bookID,
			BorrowDate: now,
			DueDate:    fees.DueDate(now),
		}
		return s.loanRepo.Create(tx, record)
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrBookNotFound):
		return notFound("Book not found.")
	case errors.Is(err, ErrNotAvailable):
		return rejected("This book is currently not available.")
	case errors.Is(err, ErrLoanLimitReached):
		s.log.Info("BorrowBook: loan limit reached", "patron_id", patronID)
		return rejected(fmt.Sprintf("You have reached the maximum borrowing limit of %d books.", MaxActiveLoans))
	case errors.Is(err, ErrAlreadyBorrowed), isUniqueViolation(err):
		return rejected("You already have an active loan for this book.")
	default:
		s.log.Error("BorrowBook: transaction failed", "patron_id", patronID, "book_id", bookID, "error", err)
		return storageFailure("Database error occurred while creating borrow record.")
	}

	s.log.Info("BorrowBook: loan created", "record_id", record.ID, "patron_id", patronID, "book_id", bookID, "due", record.DueDate.Format("2006-01-02"))
	return ok(fmt.Sprintf("Successfully borrowed %q. Due date: %s.", book.Title, record.DueDate.Format("2006-01-02")))
}

// ─── Return ───────────────────────────────────────────────────────────────────

// ReturnBook closes the patron's active loan of a book and puts the copy back.
//
// The late fee is computed from the loan's due date at the moment of return
// and reported in the message; it is not stored.
func (s *libraryService) ReturnBook(ctx context.Context, patronID string, bookID uuid.UUID) models.Result {
	if !ValidPatronID(patronID) {
		return invalid("Invalid patron ID. Must be exactly 6 digits.")
	}

	var book *models.Book
	var days int
	var fee decimal.Decimal

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.bookRepo.GetByID(tx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		book = b

		record, err := s.loanRepo.FindActiveForUpdate(tx, patronID, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoActiveLoan
			}
			return err
		}

		now := s.now().UTC()
		days, fee = fees.Compute(record.DueDate, now)

		marked, err := s.loanRepo.MarkReturned(tx, record.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return ErrNoActiveLoan
		}

		restored, err := s.bookRepo.AdjustAvailableCopies(tx, bookID, 1)
		if err != nil {
			return err
		}
		if !restored {
			return ErrCopyCountMismatch
		}
		s.log.Info("ReturnBook: loan closed", "record_id", record.ID, "patron_id", patronID, "book_id", bookID, "days_overdue", days, "fee", fee.StringFixed(2))
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrBookNotFound):
		return notFound("Book not found.")
	case errors.Is(err, ErrNoActiveLoan):
		return notFound("No active borrow record found for this book and patron.")
	default:
		s.log.Error("ReturnBook: transaction failed", "patron_id", patronID, "book_id", bookID, "error", err)
		return storageFailure("Database error occurred while processing the return.")
	}

	if fee.IsPositive() {
		return ok(fmt.Sprintf("Book %q returned successfully. Late fee owed: $%s (%d days overdue).", book.Title, fee.StringFixed(2), days))
	}
	return ok(fmt.Sprintf("Book %q returned successfully. No late fees.", book.Title))
}

// ─── Fee Query ────────────────────────────────────────────────────────────────

// CalculateLateFee quotes the fee currently owed on the patron's active loan
// of a book. It never writes.
func (s *libraryService) CalculateLateFee(ctx context.Context, patronID string, bookID uuid.UUID) models.FeeQuote {
	if !ValidPatronID(patronID) {
		return quote(models.FeeStatusInvalidPatron, 0, decimal.Zero)
	}

	db := s.db.WithContext(ctx)
	if _, err := s.bookRepo.GetByID(db, bookID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return quote(models.FeeStatusBookNotFound, 0, decimal.Zero)
		}
		s.log.Error("CalculateLateFee: book lookup failed", "book_id", bookID, "error", err)
		return quote(models.FeeStatusStorageError, 0, decimal.Zero)
	}

	record, err := s.loanRepo.FindActive(db, patronID, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return quote(models.FeeStatusNoActiveRecord, 0, decimal.Zero)
		}
		s.log.Error("CalculateLateFee: loan lookup failed", "patron_id", patronID, "book_id", bookID, "error", err)
		return quote(models.FeeStatusStorageError, 0, decimal.Zero)
	}

	now := s.now().UTC()
	if !now.After(record.DueDate) {
		return quote(models.FeeStatusNotOverdue, 0, decimal.Zero)
	}
	days, fee := fees.Compute(record.DueDate, now)
	return quote(models.FeeStatusSuccess, days, fee)
}

// ─── Reporting ────────────────────────────────────────────────────────────────

// PatronStatusReport lists a patron's current loans with their fees, the
// total owed, and the full borrowing history newest first.
func (s *libraryService) PatronStatusReport(ctx context.Context, patronID string) (*models.PatronReport, error) {
	if !ValidPatronID(patronID) {
		return nil, ErrInvalidPatronID
	}

	db := s.db.WithContext(ctx)
	active, err := s.loanRepo.ListActiveByPatron(db, patronID)
	if err != nil {
		return nil, fmt.Errorf("list active loans: %w", err)
	}
	history, err := s.loanRepo.ListByPatron(db, patronID)
	if err != nil {
		return nil, fmt.Errorf("list borrowing history: %w", err)
	}

	now := s.now().UTC()
	report := &models.PatronReport{
		PatronID:               patronID,
		CurrentlyBorrowedBooks: make([]models.BorrowedBook, 0, len(active)),
		NumberOfBooksBorrowed:  len(active),
		TotalLateFeesOwed:      decimal.Zero,
		BorrowingHistory:       history,
	}
	for _, rec := range active {
		days, fee := fees.Compute(rec.DueDate, now)
		report.CurrentlyBorrowedBooks = append(report.CurrentlyBorrowedBooks, models.BorrowedBook{
			BookID:      rec.BookID,
			Title:       rec.Book.Title,
			Author:      rec.Book.Author,
			BorrowDate:  rec.BorrowDate,
			DueDate:     rec.DueDate,
			IsOverdue:   now.After(rec.DueDate),
			DaysOverdue: days,
			LateFee:     fee,
		})
		report.TotalLateFeesOwed = report.TotalLateFeesOwed.Add(fee)
	}
	return report, nil
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

func quote(status models.FeeStatus, days int, fee decimal.Decimal) models.FeeQuote {
	return models.FeeQuote{FeeAmount: fee, DaysOverdue: days, Status: status}
}

func ok(msg string) models.Result {
	return models.Result{Success: true, Message: msg, Outcome: models.OutcomeOK}
}

func invalid(msg string) models.Result {
	return models.Result{Message: msg, Outcome: models.OutcomeInvalid}
}

func notFound(msg string) models.Result {
	return models.Result{Message: msg, Outcome: models.OutcomeNotFound}
}

func rejected(msg string) models.Result {
	return models.Result{Message: msg, Outcome: models.OutcomeRejected}
}

func storageFailure(msg string) models.Result {
	return models.Result{Message: msg, Outcome: models.OutcomeStorageError}
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isUniqueViolation checks whether a unique-constraint error occurred, either
// translated by gorm or as raw postgres (23505) / sqlite text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "UNIQUE constraint failed")
}
