// Package payments contains the payment gateway capability used to charge
// and refund late fees, plus the gateways the desk can run against.
package payments

import (
	"context"
	"regexp"

	"github.com/shopspring/decimal"
)

// ChargeResult is the gateway's answer to a charge. TransactionID is only
// meaningful when Approved is true.
type ChargeResult struct {
	Approved      bool   `json:"approved"`
	TransactionID string `json:"transaction_id"`
	Detail        string `json:"detail"`
}

type RefundResult struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// Gateway charges and refunds patrons. A returned error means the gateway
// could not be reached or failed mid-call; a decline is a ChargeResult with
// Approved=false and a nil error.
type Gateway interface {
	ProcessPayment(ctx context.Context, patronID string, amount decimal.Decimal, description string) (ChargeResult, error)
	RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal) (RefundResult, error)
}

// TransactionPrefix starts every transaction id a gateway issues.
const TransactionPrefix = "txn_"

var transactionIDPattern = regexp.MustCompile(`^txn_[A-Za-z0-9_-]+$`)

// ValidTransactionID reports whether id has the shape of a gateway-issued
// transaction reference.
func ValidTransactionID(id string) bool {
	return transactionIDPattern.MatchString(id)
}
