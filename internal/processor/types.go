package processor

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Invoice is a request for payment lodged with the processor. The processor
// owns it; we only read it.
type Invoice struct {
	ID             string                 `json:"id"`
	CheckoutLink   string                 `json:"checkoutLink"`
	Status         string                 `json:"status"`
	Amount         decimal.Decimal        `json:"amount"`
	Currency       string                 `json:"currency"`
	CreatedTime    int64                  `json:"createdTime"`
	ExpirationTime int64                  `json:"expirationTime"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// PaymentMethod is one settlement channel of an invoice. Field naming varies
// between processor versions, see Classifier.
type PaymentMethod struct {
	PaymentMethodID string `json:"paymentMethodId,omitempty"`
	PaymentMethod   string `json:"paymentMethod,omitempty"`
	CryptoCode      string `json:"cryptoCode,omitempty"`
	Destination     string `json:"destination"`
	PaymentLink     string `json:"paymentLink,omitempty"`
}

// CreateInvoiceRequest describes the invoice to create.
type CreateInvoiceRequest struct {
	Amount     decimal.Decimal
	Currency   string
	BuyerEmail string
	Metadata   map[string]interface{}
}

// Invoice statuses we act on, lower-cased.
const (
	StatusNew        = "new"
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSettled    = "settled"
	StatusPaid       = "paid"
	StatusExpired    = "expired"
	StatusInvalid    = "invalid"
)

// NormalizeStatus lower-cases and trims a processor status.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// IsSuccess reports whether status means the donation went through.
// Processing counts: the payment is seen and only awaits confirmations.
func IsSuccess(status string) bool {
	switch NormalizeStatus(status) {
	case StatusSettled, StatusProcessing, StatusPaid:
		return true
	}
	return false
}

// IsFailed reports whether status means the invoice can no longer be paid.
func IsFailed(status string) bool {
	switch NormalizeStatus(status) {
	case StatusExpired, StatusInvalid:
		return true
	}
	return false
}
