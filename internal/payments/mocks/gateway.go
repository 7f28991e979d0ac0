// Package mocks holds testify mocks for the payments package.
package mocks

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"librarydesk/internal/payments"
)

// Gateway is a mock payments.Gateway.
type Gateway struct {
	mock.Mock
}

var _ payments.Gateway = (*Gateway)(nil)

func (m *Gateway) ProcessPayment(ctx context.Context, patronID string, amount decimal.Decimal, description string) (payments.ChargeResult, error) {
	ret := m.Called(ctx, patronID, amount, description)
	return ret.Get(0).(payments.ChargeResult), ret.Error(1)
}

func (m *Gateway) RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal) (payments.RefundResult, error) {
	ret := m.Called(ctx, transactionID, amount)
	return ret.Get(0).(payments.RefundResult), ret.Error(1)
}
