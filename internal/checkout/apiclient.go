package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ln-donations/internal/models"
	"ln-donations/internal/processor"
)

// RateLimitedError is returned when the server rejects a request with 429.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many requests, retry in %s", e.RetryAfter)
}

// ServerError is a non-2xx answer from the donation API.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("donation api returned %d: %s", e.StatusCode, e.Message)
}

// APIClient implements Backend over the donation service's HTTP API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type createRequest struct {
	Amount       decimal.Decimal     `json:"amount"`
	Tier         models.Tier         `json:"tier"`
	DonationType models.DonationType `json:"donationType"`
	Name         string              `json:"name,omitempty"`
	Email        string              `json:"email,omitempty"`
}

type createResponse struct {
	Success bool               `json:"success"`
	Invoice *processor.Invoice `json:"invoice"`
}

// CreateInvoice implements Backend.CreateInvoice.
func (c *APIClient) CreateInvoice(ctx context.Context, intent models.DonationIntent) (*processor.Invoice, error) {
	body := createRequest{
		Amount:       intent.Amount,
		Tier:         intent.Tier,
		DonationType: intent.DonationType,
		Name:         intent.DonorName,
		Email:        intent.DonorEmail,
	}

	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/api/donations/create", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Invoice == nil || resp.Invoice.ID == "" {
		return nil, errors.New("donation api returned no invoice")
	}
	return resp.Invoice, nil
}

// PaymentMethods implements Backend.PaymentMethods.
func (c *APIClient) PaymentMethods(ctx context.Context, invoiceID string) ([]processor.PaymentMethod, error) {
	var methods []processor.PaymentMethod
	path := "/api/donations/" + url.PathEscape(invoiceID) + "/payment-methods"
	if err := c.do(ctx, http.MethodGet, path, nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// InvoiceStatus implements Backend.InvoiceStatus.
func (c *APIClient) InvoiceStatus(ctx context.Context, invoiceID string) (string, error) {
	var invoice processor.Invoice
	path := "/api/donations/status?invoiceId=" + url.QueryEscape(invoiceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &invoice); err != nil {
		return "", err
	}
	return invoice.Status, nil
}

// SendReceipt implements Backend.SendReceipt.
func (c *APIClient) SendReceipt(ctx context.Context, invoiceID string) error {
	body := map[string]string{"invoiceId": invoiceID}
	return c.do(ctx, http.MethodPost, "/api/donations/send-receipt", body, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		seconds, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &RateLimitedError{RetryAfter: time.Duration(seconds) * time.Second}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		return &ServerError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
