package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// HTTPGateway talks to a remote payment processor over JSON.
//
//	POST {base}/charges  {"patron_id","amount","description"} -> ChargeResult
//	POST {base}/refunds  {"transaction_id","amount"}          -> RefundResult
//
// A 2xx or 4xx response carries a decision in its body. Anything else, and any
// transport failure, is returned as an error.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type chargeRequest struct {
	PatronID    string          `json:"patron_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type refundRequest struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
}

func (g *HTTPGateway) ProcessPayment(ctx context.Context, patronID string, amount decimal.Decimal, description string) (ChargeResult, error) {
	var out ChargeResult
	err := g.post(ctx, "/charges", chargeRequest{PatronID: patronID, Amount: amount, Description: description}, &out)
	if err != nil {
		return ChargeResult{}, errors.Wrap(err, "charge")
	}
	if out.Approved && !ValidTransactionID(out.TransactionID) {
		return ChargeResult{}, fmt.Errorf("charge: gateway returned malformed transaction id %q", out.TransactionID)
	}
	return out, nil
}

func (g *HTTPGateway) RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal) (RefundResult, error) {
	var out RefundResult
	if err := g.post(ctx, "/refunds", refundRequest{TransactionID: transactionID, Amount: amount}, &out); err != nil {
		return RefundResult{}, errors.Wrap(err, "refund")
	}
	return out, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= 500 || resp.StatusCode < 200 || (resp.StatusCode >= 300 && resp.StatusCode < 400) {
		return fmt.Errorf("gateway responded %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "decode %d response", resp.StatusCode)
	}
	return nil
}
