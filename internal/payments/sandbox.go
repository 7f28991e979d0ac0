package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultChargeLimit is the largest single charge the sandbox approves.
var DefaultChargeLimit = decimal.NewFromInt(1000)

type charge struct {
	patronID string
	amount   decimal.Decimal
	refunded decimal.Decimal
}

// Sandbox is an in-process gateway for local runs and tests. It keeps issued
// charges in memory so refunds can be checked against them.
type Sandbox struct {
	mu      sync.Mutex
	limit   decimal.Decimal
	seq     int
	now     func() time.Time
	charges map[string]*charge
}

type SandboxOption func(*Sandbox)

func WithChargeLimit(limit decimal.Decimal) SandboxOption {
	return func(s *Sandbox) { s.limit = limit }
}

func WithClock(now func() time.Time) SandboxOption {
	return func(s *Sandbox) { s.now = now }
}

func NewSandbox(opts ...SandboxOption) *Sandbox {
	s := &Sandbox{
		limit:   DefaultChargeLimit,
		now:     time.Now,
		charges: make(map[string]*charge),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sandbox) ProcessPayment(ctx context.Context, patronID string, amount decimal.Decimal, description string) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}
	if !amount.IsPositive() {
		return ChargeResult{Detail: "Invalid amount: must be positive"}, nil
	}
	if amount.GreaterThan(s.limit) {
		return ChargeResult{Detail: "Payment declined: amount exceeds limit"}, nil
	}
	if len(patronID) != 6 {
		return ChargeResult{Detail: "Invalid patron ID"}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("%s%s_%d_%d", TransactionPrefix, patronID, s.now().Unix(), s.seq)
	s.charges[id] = &charge{patronID: patronID, amount: amount, refunded: decimal.Zero}
	return ChargeResult{
		Approved:      true,
		TransactionID: id,
		Detail:        fmt.Sprintf("Payment of $%s processed successfully", amount.StringFixed(2)),
	}, nil
}

func (s *Sandbox) RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal) (RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return RefundResult{}, err
	}
	if !ValidTransactionID(transactionID) {
		return RefundResult{Detail: "Invalid transaction ID"}, nil
	}
	if !amount.IsPositive() {
		return RefundResult{Detail: "Invalid refund amount"}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.charges[transactionID]
	if c == nil {
		return RefundResult{Detail: "Transaction not found"}, nil
	}
	if c.refunded.Add(amount).GreaterThan(c.amount) {
		return RefundResult{Detail: fmt.Sprintf("Refund declined: only $%s remains refundable", c.amount.Sub(c.refunded).StringFixed(2))}, nil
	}
	c.refunded = c.refunded.Add(amount)
	return RefundResult{
		Success: true,
		Detail:  fmt.Sprintf("Refund of $%s processed successfully. Refund ID: refund_%s_%d", amount.StringFixed(2), transactionID, s.now().Unix()),
	}, nil
}
