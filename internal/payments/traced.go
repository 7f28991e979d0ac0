package payments

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Traced wraps a Gateway so every call gets its own span.
type Traced struct {
	next   Gateway
	tracer trace.Tracer
}

func NewTraced(next Gateway) *Traced {
	return &Traced{next: next, tracer: otel.Tracer("librarydesk/payments")}
}

func (t *Traced) ProcessPayment(ctx context.Context, patronID string, amount decimal.Decimal, description string) (ChargeResult, error) {
	ctx, span := t.tracer.Start(ctx, "payments.ProcessPayment", trace.WithAttributes(
		attribute.String("payment.amount", amount.StringFixed(2)),
	))
	defer span.End()

	res, err := t.next.ProcessPayment(ctx, patronID, amount, description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.Bool("payment.approved", res.Approved))
	return res, nil
}

func (t *Traced) RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal) (RefundResult, error) {
	ctx, span := t.tracer.Start(ctx, "payments.RefundPayment", trace.WithAttributes(
		attribute.String("payment.transaction_id", transactionID),
		attribute.String("payment.amount", amount.StringFixed(2)),
	))
	defer span.End()

	res, err := t.next.RefundPayment(ctx, transactionID, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.Bool("refund.success", res.Success))
	return res, nil
}
