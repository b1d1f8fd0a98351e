package donor

import (
	"context"

	"github.com/pkg/errors"

	"ln-donations/internal/models"
)

var (
	ErrNotFound      = errors.New("donor record not found")
	ErrInvalidRecord = errors.New("donor record is invalid")
)

type Store interface {
	// EnsureSchema creates the backing table and indexes when absent. It is
	// safe to call on every startup.
	EnsureSchema(ctx context.Context) error

	// Upsert inserts the record or, when one already exists for the invoice,
	// overwrites its name, email, amount, tier and donation type. On return
	// record holds the stored id and creation time.
	Upsert(ctx context.Context, record *models.DonorRecord) error

	// GetByInvoiceID returns the record stored for an invoice.
	//
	// Returns ErrNotFound if no record exists.
	GetByInvoiceID(ctx context.Context, invoiceID string) (*models.DonorRecord, error)

	// ListNamed returns named donations, newest first. Anonymous records are
	// never listed.
	ListNamed(ctx context.Context) ([]*models.DonorRecord, error)

	// Stats aggregates every record regardless of donation type.
	Stats(ctx context.Context) (*models.DonorStats, error)
}

// Validate checks a record before it is written.
func Validate(record *models.DonorRecord) error {
	if record == nil || record.InvoiceID == "" {
		return errors.Wrap(ErrInvalidRecord, "invoice id is required")
	}
	switch record.DonationType {
	case models.DonationAnonymous, models.DonationNamed:
	default:
		return errors.Wrapf(ErrInvalidRecord, "unknown donation type %q", record.DonationType)
	}
	if record.Amount.IsNegative() {
		return errors.Wrap(ErrInvalidRecord, "amount is negative")
	}
	return nil
}

// FromIntent builds the record for a freshly created invoice.
func FromIntent(invoiceID string, intent *models.DonationIntent) *models.DonorRecord {
	record := &models.DonorRecord{
		InvoiceID:    invoiceID,
		Amount:       intent.Amount,
		Tier:         intent.Tier,
		DonationType: intent.DonationType,
	}
	if intent.DonationType == models.DonationNamed {
		record.Name = intent.DonorName
		record.Email = intent.DonorEmail
	}
	return record
}
