// Package bank talks to the external bank-simulation API used for the
// "bank" payment method.
package bank

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sinilikhain/internal/models"
	"sinilikhain/internal/util"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Account is a registered bank account.
type Account struct {
	AccountNumber string          `json:"accountNumber"`
	AccountName   string          `json:"accountName"`
	Balance       decimal.Decimal `json:"balance"`
}

// TransferRequest moves Amount from one account to another.
type TransferRequest struct {
	FromAccount string          `json:"fromAccount"`
	ToAccount   string          `json:"toAccount"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
}

// TransferReceipt is the bank's acknowledgement of a transfer.
type TransferReceipt struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

type apiError struct {
	Message string `json:"message"`
}

type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a bank API client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{http: rc, logger: util.GetLogger()}
}

// GetAccount validates that an account exists and returns its holder.
func (c *Client) GetAccount(ctx context.Context, accountNumber string) (*Account, error) {
	ctx, span := util.StartSpan(ctx, "BankClient.GetAccount")
	defer span.End()

	start := time.Now()
	var (
		account Account
		failure apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("number", accountNumber).
		SetResult(&account).
		SetError(&failure).
		Get("/accounts/{number}")
	util.BankRequestLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("%w: bank unreachable: %v", models.ErrPayment, err))
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: bank account %s does not exist", models.ErrPayment, accountNumber)
	case resp.IsError():
		return nil, util.RecordError(span, fmt.Errorf("%w: account lookup failed with status %d: %s",
			models.ErrPayment, resp.StatusCode(), failure.Message))
	}
	return &account, nil
}

// Transfer requests a fund transfer.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error) {
	ctx, span := util.StartSpan(ctx, "BankClient.Transfer")
	defer span.End()

	start := time.Now()
	var (
		receipt TransferReceipt
		failure apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&receipt).
		SetError(&failure).
		Post("/transfers")
	util.BankRequestLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.BankTransfersTotal.WithLabelValues("error").Inc()
		return nil, util.RecordError(span, fmt.Errorf("%w: bank unreachable: %v", models.ErrPayment, err))
	}
	if resp.IsError() {
		util.BankTransfersTotal.WithLabelValues("rejected").Inc()
		c.logger.Warn("Bank transfer rejected",
			zap.String("reference", req.Reference),
			zap.Int("status", resp.StatusCode()),
			zap.String("message", failure.Message))
		return nil, util.RecordError(span, fmt.Errorf("%w: transfer %s rejected: %s",
			models.ErrPayment, req.Reference, failure.Message))
	}

	util.BankTransfersTotal.WithLabelValues("ok").Inc()
	return &receipt, nil
}
