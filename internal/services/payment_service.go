package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"librarydesk/internal/fees"
	"librarydesk/internal/models"
	"librarydesk/internal/payments"
	"librarydesk/internal/pkg/logger"
)

// LateFeeSource is the part of LibraryService the payment flow reads from.
type LateFeeSource interface {
	CalculateLateFee(ctx context.Context, patronID string, bookID uuid.UUID) models.FeeQuote
	GetBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error)
}

// PaymentService charges and refunds late fees through a payment gateway.
// Each call makes a single gateway attempt; retrying is up to the caller.
type PaymentService interface {
	PayLateFees(ctx context.Context, patronID string, bookID uuid.UUID, gw payments.Gateway) models.PaymentResult
	RefundLateFeePayment(ctx context.Context, transactionID string, amount decimal.Decimal, gw payments.Gateway) models.Result
}

type paymentService struct {
	lateFees LateFeeSource
	log      *logger.Logger
}

func NewPaymentService(lateFees LateFeeSource, log *logger.Logger) PaymentService {
	return &paymentService{
		lateFees: lateFees,
		log:      log.With("service", "PaymentService"),
	}
}

// PayLateFees charges the patron the fee currently owed on their active loan
// of a book. Nothing is recorded locally; the transaction id from the gateway
// is the only trace of the payment.
func (s *paymentService) PayLateFees(ctx context.Context, patronID string, bookID uuid.UUID, gw payments.Gateway) models.PaymentResult {
	if !ValidPatronID(patronID) {
		return paymentFailure("Invalid patron ID. Must be exactly 6 digits.", models.OutcomeInvalid)
	}

	q := s.lateFees.CalculateLateFee(ctx, patronID, bookID)
	if q.Status == models.FeeStatusStorageError {
		return paymentFailure("Unable to calculate late fees.", models.OutcomeStorageError)
	}
	if !q.FeeAmount.IsPositive() {
		return paymentFailure("No late fees to pay for this book.", noFeeOutcome(q.Status))
	}

	book, err := s.lateFees.GetBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, ErrBookNotFound) {
			return paymentFailure("Book not found.", models.OutcomeNotFound)
		}
		s.log.Error("PayLateFees: book lookup failed", "book_id", bookID, "error", err)
		return paymentFailure("Unable to load book details.", models.OutcomeStorageError)
	}

	description := fmt.Sprintf("Late fees for '%s'", book.Title)
	res, err := processPayment(ctx, gw, patronID, q.FeeAmount, description)
	if err != nil {
		s.log.Warn("PayLateFees: gateway fault", "patron_id", patronID, "book_id", bookID, "amount", q.FeeAmount.StringFixed(2), "error", err)
		return paymentFailure("Payment processing error: "+err.Error(), models.OutcomeGatewayError)
	}
	if !res.Approved {
		s.log.Info("PayLateFees: payment declined", "patron_id", patronID, "book_id", bookID, "detail", res.Detail)
		return paymentFailure("Payment failed: "+res.Detail, models.OutcomeDeclined)
	}

	txn := res.TransactionID
	s.log.Info("PayLateFees: payment approved", "patron_id", patronID, "book_id", bookID, "amount", q.FeeAmount.StringFixed(2), "transaction_id", txn)
	return models.PaymentResult{
		Success:       true,
		Message:       fmt.Sprintf("Payment successful! Paid $%s for late fees. Transaction ID: %s", q.FeeAmount.StringFixed(2), txn),
		TransactionID: &txn,
		Outcome:       models.OutcomeOK,
	}
}

// RefundLateFeePayment returns up to one loan's maximum late fee against an
// earlier charge. The gateway's answer is passed through unchanged.
func (s *paymentService) RefundLateFeePayment(ctx context.Context, transactionID string, amount decimal.Decimal, gw payments.Gateway) models.Result {
	if !payments.ValidTransactionID(transactionID) {
		return invalid("Invalid transaction ID.")
	}
	if !amount.IsPositive() {
		return invalid("Refund amount must be greater than 0.")
	}
	if amount.GreaterThan(fees.MaxFee) {
		return rejected("Refund amount exceeds maximum late fee.")
	}

	res, err := refundPayment(ctx, gw, transactionID, amount)
	if err != nil {
		s.log.Warn("RefundLateFeePayment: gateway fault", "transaction_id", transactionID, "amount", amount.StringFixed(2), "error", err)
		return models.Result{Message: "Refund processing error: " + err.Error(), Outcome: models.OutcomeGatewayError}
	}
	s.log.Info("RefundLateFeePayment: gateway answered", "transaction_id", transactionID, "amount", amount.StringFixed(2), "success", res.Success)
	if !res.Success {
		return models.Result{Message: res.Detail, Outcome: models.OutcomeDeclined}
	}
	return ok(res.Detail)
}

// processPayment and refundPayment turn a panicking gateway into an error so
// no gateway fault escapes the service.
func processPayment(ctx context.Context, gw payments.Gateway, patronID string, amount decimal.Decimal, description string) (res payments.ChargeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = payments.ChargeResult{}, fmt.Errorf("gateway panic: %v", r)
		}
	}()
	return gw.ProcessPayment(ctx, patronID, amount, description)
}

func refundPayment(ctx context.Context, gw payments.Gateway, transactionID string, amount decimal.Decimal) (res payments.RefundResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = payments.RefundResult{}, fmt.Errorf("gateway panic: %v", r)
		}
	}()
	return gw.RefundPayment(ctx, transactionID, amount)
}

func paymentFailure(msg string, outcome models.Outcome) models.PaymentResult {
	return models.PaymentResult{Message: msg, Outcome: outcome}
}

func noFeeOutcome(status models.FeeStatus) models.Outcome {
	switch status {
	case models.FeeStatusBookNotFound, models.FeeStatusNoActiveRecord:
		return models.OutcomeNotFound
	case models.FeeStatusInvalidPatron:
		return models.OutcomeInvalid
	default:
		return models.OutcomeRejected
	}
}
