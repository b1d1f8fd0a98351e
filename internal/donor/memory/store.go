package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ln-donations/internal/donor"
	"ln-donations/internal/models"
)

type store struct {
	mu      sync.Mutex
	last    int64
	records map[string]*models.DonorRecord
}

// New returns a new in memory donor.Store
func New() donor.Store {
	return &store{
		records: make(map[string]*models.DonorRecord),
	}
}

// EnsureSchema implements donor.Store.EnsureSchema
func (s *store) EnsureSchema(_ context.Context) error {
	return nil
}

// Upsert implements donor.Store.Upsert
func (s *store) Upsert(_ context.Context, record *models.DonorRecord) error {
	if err := donor.Validate(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.records[record.InvoiceID]; ok {
		item.Name = record.Name
		item.Email = record.Email
		item.Amount = record.Amount
		item.Tier = record.Tier
		item.DonationType = record.DonationType

		*record = item.Clone()
		return nil
	}

	s.last++
	cloned := record.Clone()
	cloned.ID = s.last
	cloned.CreatedAt = time.Now()
	s.records[record.InvoiceID] = &cloned

	*record = cloned.Clone()
	return nil
}

// GetByInvoiceID implements donor.Store.GetByInvoiceID
func (s *store) GetByInvoiceID(_ context.Context, invoiceID string) (*models.DonorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.records[invoiceID]
	if !ok {
		return nil, donor.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

// ListNamed implements donor.Store.ListNamed
func (s *store) ListNamed(_ context.Context) ([]*models.DonorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := []*models.DonorRecord{}
	for _, item := range s.records {
		if item.DonationType != models.DonationNamed {
			continue
		}
		cloned := item.Clone()
		res = append(res, &cloned)
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// Stats implements donor.Store.Stats
func (s *store) Stats(_ context.Context) (*models.DonorStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &models.DonorStats{TotalAmount: decimal.Zero}
	for _, item := range s.records {
		stats.TotalDonations++
		stats.TotalAmount = stats.TotalAmount.Add(item.Amount)
		if item.DonationType == models.DonationNamed {
			stats.NamedCount++
		} else {
			stats.AnonymousCount++
		}
	}
	return stats, nil
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = 0
	s.records = make(map[string]*models.DonorRecord)
}
