package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Book struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string    `gorm:"size:200;not null" json:"title"`
	Author          string    `gorm:"size:100;not null" json:"author"`
	ISBN            string    `gorm:"size:13;not null;uniqueIndex" json:"isbn"`
	TotalCopies     int       `gorm:"not null" json:"total_copies"`
	AvailableCopies int       `gorm:"not null" json:"available_copies"`
}

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// BorrowRecord is one loan of one copy. A record with a nil ReturnDate is an
// active loan; at most one may exist per patron and book.
type BorrowRecord struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PatronID   string     `gorm:"size:6;not null;index;uniqueIndex:uniq_active_loan,where:return_date IS NULL" json:"patron_id"`
	BookID     uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uniq_active_loan,where:return_date IS NULL" json:"book_id"`
	Book       Book       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	BorrowDate time.Time  `gorm:"not null" json:"borrow_date"`
	DueDate    time.Time  `gorm:"not null" json:"due_date"`
	ReturnDate *time.Time `json:"return_date"`
}

func (r *BorrowRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Active reports whether the loan has not been returned yet.
func (r *BorrowRecord) Active() bool {
	return r.ReturnDate == nil
}

type FeeStatus string

const (
	FeeStatusSuccess        FeeStatus = "Success"
	FeeStatusNotOverdue     FeeStatus = "Book not overdue"
	FeeStatusNoActiveRecord FeeStatus = "No active borrow record found"
	FeeStatusBookNotFound   FeeStatus = "Book not found"
	FeeStatusInvalidPatron  FeeStatus = "Invalid patron ID"
	FeeStatusStorageError   FeeStatus = "Unable to calculate late fees"
)

// FeeQuote is the late fee owed on an active loan at the time it was computed.
type FeeQuote struct {
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	DaysOverdue int             `json:"days_overdue"`
	Status      FeeStatus       `json:"status"`
}

// Outcome classifies a Result for callers that need more than a boolean,
// such as the HTTP layer picking a status code.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeRejected     Outcome = "rejected"
	OutcomeStorageError Outcome = "storage_error"
	OutcomeDeclined     Outcome = "declined"
	OutcomeGatewayError Outcome = "gateway_error"
)

type Result struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Outcome Outcome `json:"-"`
}

type PaymentResult struct {
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
	TransactionID *string `json:"transaction_id"`
	Outcome       Outcome `json:"-"`
}

type BorrowedBook struct {
	BookID      uuid.UUID       `json:"book_id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	BorrowDate  time.Time       `json:"borrow_date"`
	DueDate     time.Time       `json:"due_date"`
	IsOverdue   bool            `json:"is_overdue"`
	DaysOverdue int             `json:"days_overdue"`
	LateFee     decimal.Decimal `json:"late_fee"`
}

type PatronReport struct {
	PatronID               string          `json:"patron_id"`
	CurrentlyBorrowedBooks []BorrowedBook  `json:"currently_borrowed_books"`
	NumberOfBooksBorrowed  int             `json:"number_of_books_borrowed"`
	TotalLateFeesOwed      decimal.Decimal `json:"total_late_fees_owed"`
	BorrowingHistory       []BorrowRecord  `json:"borrowing_history"`
}
