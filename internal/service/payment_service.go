package service

import (
	"context"
	"fmt"

	"sinilikhain/internal/bank"
	"sinilikhain/internal/broker"
	"sinilikhain/internal/models"
	"sinilikhain/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Transfer outcomes
const (
	TransferCompleted = "completed"
	TransferFailed    = "failed"
	TransferSkipped   = "skipped"
)

// TransferResult is the outcome of paying one artisan for an order.
type TransferResult struct {
	ArtisanID     int64           `json:"artisanId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transactionId,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// PaymentResult summarizes a bank payment for an order.
type PaymentResult struct {
	Status           string           `json:"status"`
	BuyerAccountName string           `json:"buyerAccountName"`
	Transfers        []TransferResult `json:"transfers"`
}

// PaymentService settles "bank" orders by moving each artisan's share from
// the buyer's account through the external bank API
type PaymentService struct {
	users  UserRepository
	orders OrderRepository
	bank   BankClient
	events EventPublisher
	logger *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(users UserRepository, orders OrderRepository, bankClient BankClient, events EventPublisher) *PaymentService {
	return &PaymentService{
		users:  users,
		orders: orders,
		bank:   bankClient,
		events: events,
		logger: util.GetLogger(),
	}
}

// VerifyBuyerAccount checks that the buyer's bank account exists
func (ps *PaymentService) VerifyBuyerAccount(ctx context.Context, accountNumber string) (*bank.Account, error) {
	if accountNumber == "" {
		return nil, models.Invalid("bank account number is required for bank payments")
	}
	return ps.bank.GetAccount(ctx, accountNumber)
}

// artisanShares groups the order total by artisan, in order of first appearance.
func artisanShares(items []models.OrderItem) ([]int64, map[int64]decimal.Decimal) {
	var order []int64
	shares := make(map[int64]decimal.Decimal)
	for _, it := range items {
		if _, ok := shares[it.ArtisanID]; !ok {
			order = append(order, it.ArtisanID)
			shares[it.ArtisanID] = decimal.Zero
		}
		shares[it.ArtisanID] = shares[it.ArtisanID].Add(it.Subtotal())
	}
	return order, shares
}

// Settle transfers each artisan's share of the order. The first failure stops
// further transfers; transfers that already went through are not reversed.
// The order's payment status ends as paid or failed.
func (ps *PaymentService) Settle(ctx context.Context, order *models.Order, buyer *bank.Account) *PaymentResult {
	ctx, span := util.StartSpan(ctx, "PaymentService.Settle", attribute.Int64("order_id", order.ID))
	defer span.End()

	result := &PaymentResult{Status: models.PaymentStatusPaid, BuyerAccountName: buyer.AccountName}
	artisans, shares := artisanShares(order.Items)

	failed := false
	for _, artisanID := range artisans {
		tr := TransferResult{ArtisanID: artisanID, Amount: shares[artisanID]}
		if failed {
			tr.Status = TransferSkipped
			result.Transfers = append(result.Transfers, tr)
			continue
		}

		receipt, err := ps.transferTo(ctx, order.ID, buyer.AccountNumber, artisanID, tr.Amount)
		if err != nil {
			failed = true
			tr.Status = TransferFailed
			tr.Error = err.Error()
			ps.logger.Warn("Artisan transfer failed",
				zap.Int64("order_id", order.ID),
				zap.Int64("artisan_id", artisanID),
				zap.Error(err))
		} else {
			tr.Status = TransferCompleted
			tr.TransactionID = receipt.TransactionID
		}
		result.Transfers = append(result.Transfers, tr)
	}

	if failed {
		result.Status = models.PaymentStatusFailed
	}
	if err := ps.orders.UpdatePaymentStatus(ctx, order.ID, result.Status); err != nil {
		ps.logger.Error("Failed to record payment status",
			zap.Int64("order_id", order.ID),
			zap.String("payment_status", result.Status),
			zap.Error(err))
	} else {
		order.PaymentStatus = result.Status
	}

	ps.publish(ctx, order, artisans, result)
	return result
}

func (ps *PaymentService) transferTo(ctx context.Context, orderID int64, from string, artisanID int64, amount decimal.Decimal) (*bank.TransferReceipt, error) {
	artisan, err := ps.users.GetUserByID(ctx, artisanID)
	if err != nil {
		return nil, fmt.Errorf("artisan %d: %w", artisanID, err)
	}
	if artisan.BankAccount == "" {
		return nil, fmt.Errorf("%w: artisan %d has no registered bank account", models.ErrPayment, artisanID)
	}

	return ps.bank.Transfer(ctx, bank.TransferRequest{
		FromAccount: from,
		ToAccount:   artisan.BankAccount,
		Amount:      amount,
		Reference:   fmt.Sprintf("order-%d-artisan-%d", orderID, artisanID),
	})
}

func (ps *PaymentService) publish(ctx context.Context, order *models.Order, artisans []int64, result *PaymentResult) {
	if ps.events == nil {
		return
	}
	event := &models.PaymentProcessedEvent{
		BaseEvent:     broker.NewBaseEvent(models.EventTypePaymentProcessed, artisans...),
		OrderID:       order.ID,
		PaymentStatus: result.Status,
	}
	for _, tr := range result.Transfers {
		if tr.Status == TransferFailed {
			event.Reason = tr.Error
		}
	}
	if err := ps.events.PublishPaymentProcessed(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentProcessed event", zap.Error(err))
	}
}
