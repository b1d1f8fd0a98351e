// Package validation checks donation and receipt requests before any
// external call is made.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"ln-donations/internal/models"
)

var (
	MinAmount = decimal.NewFromInt(1)
	MaxAmount = decimal.NewFromInt(1_000_000)
)

// CreateDonationRequest is the body of POST /donations/create.
type CreateDonationRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	Tier         string          `json:"tier" validate:"required,oneof=supporter advocate champion friend business education custom"`
	DonationType string          `json:"donationType" validate:"required,oneof=anonymous named"`
	Name         string          `json:"name" validate:"max=100"`
	Email        string          `json:"email" validate:"max=254"`
}

// SendReceiptRequest is the body of POST /donations/send-receipt.
type SendReceiptRequest struct {
	InvoiceID     string `json:"invoiceId" validate:"required,max=255"`
	TransactionID string `json:"transactionId" validate:"max=255"`
}

// ValidationError carries every violation found in a request. Its message is
// safe to show to the donor.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	v.RegisterStructValidation(validateDonation, CreateDonationRequest{})
	return v
}

// validateDonation checks the amount bounds and the named-donation rule,
// which depends on more than one field.
func validateDonation(sl validator.StructLevel) {
	req := sl.Current().Interface().(CreateDonationRequest)

	switch {
	case !req.Amount.IsPositive():
		sl.ReportError(req.Amount, "amount", "Amount", "positive", "")
	case req.Amount.LessThan(MinAmount):
		sl.ReportError(req.Amount, "amount", "Amount", "min", MinAmount.String())
	case req.Amount.GreaterThan(MaxAmount):
		sl.ReportError(req.Amount, "amount", "Amount", "max", MaxAmount.String())
	}

	if req.DonationType != string(models.DonationNamed) {
		return
	}
	if len([]rune(strings.TrimSpace(req.Name))) < 2 {
		sl.ReportError(req.Name, "name", "Name", "named_name", "")
	}
	if err := sl.Validator().Var(strings.TrimSpace(req.Email), "required,email"); err != nil {
		sl.ReportError(req.Email, "email", "Email", "named_email", "")
	}
}

// ValidateCreate checks a donation request and returns the intent it
// describes. Anonymous donations drop any name or email that was sent.
func ValidateCreate(req CreateDonationRequest) (*models.DonationIntent, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	if err := validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}

	intent := &models.DonationIntent{
		Amount:       req.Amount,
		Tier:         models.Tier(req.Tier),
		DonationType: models.DonationType(req.DonationType),
	}
	if intent.DonationType == models.DonationNamed {
		intent.DonorName = req.Name
		intent.DonorEmail = req.Email
	}
	return intent, nil
}

// ValidateReceipt checks a send-receipt request.
func ValidateReceipt(req *SendReceiptRequest) error {
	req.InvoiceID = strings.TrimSpace(req.InvoiceID)
	req.TransactionID = strings.TrimSpace(req.TransactionID)

	if err := validate.Struct(req); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Messages: []string{err.Error()}}
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, message(fe))
	}
	return &ValidationError{Messages: messages}
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "positive":
		return fmt.Sprintf("%s must be a positive number", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "named_name":
		return "name must be at least 2 characters for named donations"
	case "named_email":
		return "email must be a valid email address for named donations"
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
