package bank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sinilikhain/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBankServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/accounts/1234" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"account not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"accountNumber":"1234","accountName":"Juan Dela Cruz","balance":"5000"}`))
	})
	mux.HandleFunc("/transfers", func(w http.ResponseWriter, r *http.Request) {
		var req TransferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		if req.Amount.GreaterThan(decimal.NewFromInt(1000)) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"insufficient funds"}`))
			return
		}
		_, _ = w.Write([]byte(`{"transactionId":"TX-1","status":"completed"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetAccount(t *testing.T) {
	c := NewClient(newBankServer(t).URL, 5*time.Second)

	account, err := c.GetAccount(context.Background(), "1234")
	require.NoError(t, err)
	assert.Equal(t, "Juan Dela Cruz", account.AccountName)
	assert.True(t, decimal.NewFromInt(5000).Equal(account.Balance))

	_, err = c.GetAccount(context.Background(), "9999")
	assert.True(t, errors.Is(err, models.ErrPayment))
	assert.Contains(t, err.Error(), "does not exist")
}

func TestTransfer(t *testing.T) {
	c := NewClient(newBankServer(t).URL, 5*time.Second)

	receipt, err := c.Transfer(context.Background(), TransferRequest{
		FromAccount: "1234", ToAccount: "5678", Amount: decimal.NewFromInt(200), Reference: "order-1-artisan-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "TX-1", receipt.TransactionID)

	_, err = c.Transfer(context.Background(), TransferRequest{
		FromAccount: "1234", ToAccount: "5678", Amount: decimal.NewFromInt(2000), Reference: "order-1-artisan-8",
	})
	assert.True(t, errors.Is(err, models.ErrPayment))
	assert.Contains(t, err.Error(), "insufficient funds")
}
