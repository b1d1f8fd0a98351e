package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"ln-donations/internal/donor"
	"ln-donations/internal/models"
)

const (
	tableName = "donors"

	selectColumns = `id, invoice_id, COALESCE(name, '') AS name, COALESCE(email, '') AS email,
		amount, tier, donation_type::text AS donation_type, created_at`
)

var schema = []string{
	`DO $$
	BEGIN
		CREATE TYPE donation_type AS ENUM ('anonymous', 'named');
	EXCEPTION
		WHEN duplicate_object THEN NULL;
	END
	$$`,
	`CREATE TABLE IF NOT EXISTS ` + tableName + ` (
		id SERIAL PRIMARY KEY,
		invoice_id VARCHAR(255) NOT NULL UNIQUE,
		name TEXT NULL,
		email TEXT NULL,
		amount NUMERIC(14, 2) NOT NULL,
		tier VARCHAR(32) NOT NULL,
		donation_type donation_type NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS donors_email_idx ON ` + tableName + ` (email)`,
	`CREATE INDEX IF NOT EXISTS donors_created_at_idx ON ` + tableName + ` (created_at)`,
}

type store struct {
	db *sqlx.DB
}

// New returns a new postgres-backed donor.Store
func New(db *sql.DB) donor.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// EnsureSchema implements donor.Store.EnsureSchema
func (s *store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to ensure donors schema")
		}
	}
	return nil
}

// Upsert implements donor.Store.Upsert
func (s *store) Upsert(ctx context.Context, record *models.DonorRecord) error {
	if err := donor.Validate(record); err != nil {
		return err
	}

	query := `INSERT INTO ` + tableName + `
		(invoice_id, name, email, amount, tier, donation_type)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6::text::donation_type)
		ON CONFLICT (invoice_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			amount = EXCLUDED.amount,
			tier = EXCLUDED.tier,
			donation_type = EXCLUDED.donation_type
		RETURNING ` + selectColumns

	var res models.DonorRecord
	err := s.db.QueryRowxContext(
		ctx,
		query,
		record.InvoiceID,
		record.Name,
		record.Email,
		record.Amount,
		string(record.Tier),
		string(record.DonationType),
	).StructScan(&res)
	if err != nil {
		return errors.Wrap(err, "failed to upsert donor record")
	}

	*record = res
	return nil
}

// GetByInvoiceID implements donor.Store.GetByInvoiceID
func (s *store) GetByInvoiceID(ctx context.Context, invoiceID string) (*models.DonorRecord, error) {
	var res models.DonorRecord
	query := `SELECT ` + selectColumns + ` FROM ` + tableName + `
		WHERE invoice_id = $1
	`

	err := s.db.GetContext(ctx, &res, query, invoiceID)
	if err == sql.ErrNoRows {
		return nil, donor.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get donor record")
	}
	return &res, nil
}

// ListNamed implements donor.Store.ListNamed
func (s *store) ListNamed(ctx context.Context) ([]*models.DonorRecord, error) {
	res := []*models.DonorRecord{}
	query := `SELECT ` + selectColumns + ` FROM ` + tableName + `
		WHERE donation_type = 'named'
		ORDER BY created_at DESC, id DESC
	`

	if err := s.db.SelectContext(ctx, &res, query); err != nil {
		return nil, errors.Wrap(err, "failed to list named donors")
	}
	return res, nil
}

// Stats implements donor.Store.Stats
func (s *store) Stats(ctx context.Context) (*models.DonorStats, error) {
	var res models.DonorStats
	query := `SELECT
			COUNT(*) AS total_donations,
			COALESCE(SUM(amount), 0) AS total_amount,
			COUNT(*) FILTER (WHERE donation_type = 'named') AS named_count,
			COUNT(*) FILTER (WHERE donation_type = 'anonymous') AS anonymous_count
		FROM ` + tableName

	if err := s.db.GetContext(ctx, &res, query); err != nil {
		return nil, errors.Wrap(err, "failed to aggregate donor stats")
	}
	return &res, nil
}
