package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"ln-donations/internal/config"
	"ln-donations/internal/retry"
	"ln-donations/internal/retry/backoff"
)

const (
	invoicesPathFormat       = "%s/api/v1/stores/%s/invoices"
	invoicePathFormat        = invoicesPathFormat + "/%s"
	paymentMethodsPathFormat = invoicePathFormat + "/payment-methods"

	maxErrorBodyBytes = 4096
)

// CheckoutPaymentMethods are requested on every invoice.
var CheckoutPaymentMethods = []string{"BTC-OnChain", "BTC-LightningNetwork"}

// API is the subset of the processor the rest of the service needs.
type API interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	GetPaymentMethods(ctx context.Context, invoiceID string) ([]PaymentMethod, error)
}

// SettingsFunc returns the current processor credentials.
type SettingsFunc func() (config.ProcessorSettings, error)

// Client talks to a BTCPay Server compatible Greenfield API. It holds no
// state beyond its HTTP client; credentials are read on every call.
type Client struct {
	httpClient  *http.Client
	settings    SettingsFunc
	log         *logrus.Entry
	createRetry []retry.Strategy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithCreateBackoff changes the delay between invoice creation attempts.
func WithCreateBackoff(base time.Duration) Option {
	return func(c *Client) {
		c.createRetry = createRetryStrategies(base)
	}
}

// NewClient returns a processor client. settings is usually config.Processor.
func NewClient(settings SettingsFunc, log *logrus.Entry, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		settings:    settings,
		log:         log,
		createRetry: createRetryStrategies(time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Only transport failures are retried: a processor that answered has made
// its decision.
func createRetryStrategies(base time.Duration) []retry.Strategy {
	return []retry.Strategy{
		retry.Limit(3),
		retry.If(IsUnreachable),
		retry.Backoff(backoff.Linear(base), 5*base),
	}
}

type checkoutOptions struct {
	SpeedPolicy    string   `json:"speedPolicy,omitempty"`
	PaymentMethods []string `json:"paymentMethods"`
	RedirectURL    string   `json:"redirectURL,omitempty"`
}

type createInvoiceBody struct {
	Amount   string                 `json:"amount"`
	Currency string                 `json:"currency"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Checkout checkoutOptions        `json:"checkout"`
}

// CreateInvoice implements API.CreateInvoice. Transport failures are retried
// twice with a linear backoff.
func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	log := c.log.WithFields(logrus.Fields{
		"method": "CreateInvoice",
		"amount": req.Amount.StringFixed(2),
	})

	settings, err := c.settings()
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]interface{}, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if req.BuyerEmail != "" {
		metadata["buyerEmail"] = req.BuyerEmail
	}

	body := createInvoiceBody{
		Amount:   req.Amount.StringFixed(2),
		Currency: req.Currency,
		Metadata: metadata,
		Checkout: checkoutOptions{
			SpeedPolicy:    settings.SpeedPolicy,
			PaymentMethods: CheckoutPaymentMethods,
			RedirectURL:    settings.RedirectURL,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode invoice request")
	}

	endpoint := fmt.Sprintf(invoicesPathFormat, settings.Host, url.PathEscape(settings.StoreID))

	var invoice Invoice
	attempts, err := retry.Retry(ctx, func(ctx context.Context) error {
		return c.do(ctx, settings, "create invoice", http.MethodPost, endpoint, payload, &invoice)
	}, c.createRetry...)
	if err != nil {
		log.WithError(err).WithField("attempts", attempts).Warn("invoice creation failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"invoice":  invoice.ID,
		"attempts": attempts,
	}).Info("invoice created")
	return &invoice, nil
}

// GetInvoice implements API.GetInvoice.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	settings, err := c.settings()
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf(invoicePathFormat, settings.Host, url.PathEscape(settings.StoreID), url.PathEscape(invoiceID))

	var invoice Invoice
	if err := c.do(ctx, settings, "get invoice", http.MethodGet, endpoint, nil, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetPaymentMethods implements API.GetPaymentMethods. Right after creation
// the list may not contain a Lightning entry yet.
func (c *Client) GetPaymentMethods(ctx context.Context, invoiceID string) ([]PaymentMethod, error) {
	settings, err := c.settings()
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf(paymentMethodsPathFormat, settings.Host, url.PathEscape(settings.StoreID), url.PathEscape(invoiceID))

	methods := []PaymentMethod{}
	if err := c.do(ctx, settings, "get payment methods", http.MethodGet, endpoint, nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

func (c *Client) do(ctx context.Context, settings config.ProcessorSettings, op, method, endpoint string, payload []byte, out interface{}) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", "token "+settings.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UnreachableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", op)
	}
	return nil
}
