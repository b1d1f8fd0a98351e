package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ln-donations/internal/config"
)

func staticSettings(host string) SettingsFunc {
	return func() (config.ProcessorSettings, error) {
		return config.ProcessorSettings{
			Host:        host,
			StoreID:     "store1",
			APIKey:      "secret",
			RedirectURL: "https://example.org/thanks",
			SpeedPolicy: "MediumSpeed",
		}, nil
	}
}

func newTestClient(host string) *Client {
	return NewClient(staticSettings(host), logrus.NewEntry(logrus.New()), WithCreateBackoff(time.Millisecond))
}

func TestCreateInvoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/stores/store1/invoices", r.URL.Path)
		assert.Equal(t, "token secret", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "25.00", body["amount"])
		assert.Equal(t, "USD", body["currency"])

		checkout := body["checkout"].(map[string]interface{})
		assert.Equal(t, []interface{}{"BTC-OnChain", "BTC-LightningNetwork"}, checkout["paymentMethods"])
		assert.Equal(t, "https://example.org/thanks", checkout["redirectURL"])
		assert.Equal(t, "MediumSpeed", checkout["speedPolicy"])

		metadata := body["metadata"].(map[string]interface{})
		assert.Equal(t, "jo@example.com", metadata["buyerEmail"])
		assert.Equal(t, "friend", metadata["tier"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"INV1","checkoutLink":"https://pay.example.org/i/INV1","status":"New","amount":"25.00","currency":"USD","createdTime":1700000000,"expirationTime":1700000900}`))
	}))
	defer server.Close()

	invoice, err := newTestClient(server.URL).CreateInvoice(context.Background(), CreateInvoiceRequest{
		Amount:     decimal.NewFromInt(25),
		Currency:   "USD",
		BuyerEmail: "jo@example.com",
		Metadata:   map[string]interface{}{"tier": "friend"},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV1", invoice.ID)
	assert.Equal(t, "New", invoice.Status)
	assert.True(t, invoice.Amount.Equal(decimal.NewFromInt(25)))
	assert.EqualValues(t, 1700000900, invoice.ExpirationTime)
}

func TestCreateInvoice_APIErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad amount"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateInvoice(context.Background(), CreateInvoiceRequest{
		Amount:   decimal.NewFromInt(5),
		Currency: "USD",
	})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "bad amount")
	assert.False(t, IsUnreachable(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCreateInvoice_UnreachableRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host := server.URL
	server.Close()

	_, err := newTestClient(host).CreateInvoice(context.Background(), CreateInvoiceRequest{
		Amount:   decimal.NewFromInt(5),
		Currency: "USD",
	})
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	assert.False(t, IsAPIError(err))
}

func TestCreateInvoice_MissingConfig(t *testing.T) {
	c := NewClient(func() (config.ProcessorSettings, error) {
		return config.ProcessorSettings{}, &config.MissingError{Component: "payment processor", Keys: []string{config.KeyProcessorAPIKey}}
	}, logrus.NewEntry(logrus.New()))

	_, err := c.CreateInvoice(context.Background(), CreateInvoiceRequest{Amount: decimal.NewFromInt(5)})
	assert.True(t, config.IsMissing(err))
}

func TestGetInvoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stores/store1/invoices/INV1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"INV1","status":"Settled"}`))
	}))
	defer server.Close()

	invoice, err := newTestClient(server.URL).GetInvoice(context.Background(), "INV1")
	require.NoError(t, err)
	assert.True(t, IsSuccess(invoice.Status))
}

func TestGetInvoice_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := newTestClient(server.URL).GetInvoice(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestGetPaymentMethods(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stores/store1/invoices/INV1/payment-methods", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"paymentMethodId":"BTC-CHAIN","destination":"bc1qxyz"},
			{"paymentMethod":"BTC-LightningNetwork","cryptoCode":"BTC","destination":"lnbc1..."}
		]`))
	}))
	defer server.Close()

	methods, err := newTestClient(server.URL).GetPaymentMethods(context.Background(), "INV1")
	require.NoError(t, err)
	require.Len(t, methods, 2)

	dest, ok := NewClassifier().Destination(methods)
	assert.True(t, ok)
	assert.Equal(t, "lnbc1...", dest)
}
