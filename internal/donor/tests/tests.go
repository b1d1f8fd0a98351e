package tests

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ln-donations/internal/donor"
	"ln-donations/internal/models"
)

func RunTests(t *testing.T, s donor.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s donor.Store){
		testHappyPath,
		testIdempotentUpsert,
		testAnonymousInvisibility,
		testStats,
		testInvalidRecords,
	} {
		tf(t, s)
		teardown()
	}
}

func named(invoiceID, name string, amount int64) *models.DonorRecord {
	return &models.DonorRecord{
		InvoiceID:    invoiceID,
		Name:         name,
		Email:        "donor@example.com",
		Amount:       decimal.NewFromInt(amount),
		Tier:         models.TierFriend,
		DonationType: models.DonationNamed,
	}
}

func anonymous(invoiceID string, amount int64) *models.DonorRecord {
	return &models.DonorRecord{
		InvoiceID:    invoiceID,
		Amount:       decimal.NewFromInt(amount),
		Tier:         models.TierCustom,
		DonationType: models.DonationAnonymous,
	}
}

func testHappyPath(t *testing.T, s donor.Store) {
	t.Run("testHappyPath", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, s.EnsureSchema(ctx))
		require.NoError(t, s.EnsureSchema(ctx))

		_, err := s.GetByInvoiceID(ctx, "INV1")
		assert.Equal(t, donor.ErrNotFound, err)

		record := named("INV1", "Jo Doe", 25)
		require.NoError(t, s.Upsert(ctx, record))
		assert.True(t, record.ID > 0)
		assert.False(t, record.CreatedAt.IsZero())

		actual, err := s.GetByInvoiceID(ctx, "INV1")
		require.NoError(t, err)
		assert.Equal(t, record.ID, actual.ID)
		assert.Equal(t, "Jo Doe", actual.Name)
		assert.Equal(t, "donor@example.com", actual.Email)
		assert.True(t, decimal.NewFromInt(25).Equal(actual.Amount))
		assert.Equal(t, models.TierFriend, actual.Tier)
		assert.Equal(t, models.DonationNamed, actual.DonationType)
	})
}

func testIdempotentUpsert(t *testing.T, s donor.Store) {
	t.Run("testIdempotentUpsert", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, s.EnsureSchema(ctx))

		first := named("INV2", "First", 10)
		require.NoError(t, s.Upsert(ctx, first))

		second := named("INV2", "Second", 42)
		second.Tier = models.TierChampion
		require.NoError(t, s.Upsert(ctx, second))
		assert.Equal(t, first.ID, second.ID)

		actual, err := s.GetByInvoiceID(ctx, "INV2")
		require.NoError(t, err)
		assert.Equal(t, "Second", actual.Name)
		assert.True(t, decimal.NewFromInt(42).Equal(actual.Amount))
		assert.Equal(t, models.TierChampion, actual.Tier)

		listed, err := s.ListNamed(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 1)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, stats.TotalDonations)
	})
}

func testAnonymousInvisibility(t *testing.T, s donor.Store) {
	t.Run("testAnonymousInvisibility", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, s.EnsureSchema(ctx))

		require.NoError(t, s.Upsert(ctx, named("INV3", "Older", 5)))
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, s.Upsert(ctx, anonymous("INV4", 7)))
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, s.Upsert(ctx, named("INV5", "Newer", 9)))

		listed, err := s.ListNamed(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, "INV5", listed[0].InvoiceID)
		assert.Equal(t, "INV3", listed[1].InvoiceID)
		for _, record := range listed {
			assert.Equal(t, models.DonationNamed, record.DonationType)
		}

		// A named donation that turns anonymous disappears from the listing.
		require.NoError(t, s.Upsert(ctx, anonymous("INV5", 9)))
		listed, err = s.ListNamed(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, "INV3", listed[0].InvoiceID)

		actual, err := s.GetByInvoiceID(ctx, "INV5")
		require.NoError(t, err)
		assert.Empty(t, actual.Name)
		assert.Empty(t, actual.Email)
	})
}

func testStats(t *testing.T, s donor.Store) {
	t.Run("testStats", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, s.EnsureSchema(ctx))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, stats.TotalDonations)
		assert.True(t, stats.TotalAmount.IsZero())

		require.NoError(t, s.Upsert(ctx, named("INV6", "A", 10)))
		require.NoError(t, s.Upsert(ctx, anonymous("INV7", 15)))
		record := anonymous("INV8", 0)
		record.Amount = decimal.RequireFromString("2.50")
		require.NoError(t, s.Upsert(ctx, record))

		stats, err = s.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, stats.TotalDonations)
		assert.EqualValues(t, 1, stats.NamedCount)
		assert.EqualValues(t, 2, stats.AnonymousCount)
		assert.True(t, decimal.RequireFromString("27.50").Equal(stats.TotalAmount), stats.TotalAmount.String())
	})
}

func testInvalidRecords(t *testing.T, s donor.Store) {
	t.Run("testInvalidRecords", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, s.EnsureSchema(ctx))

		assert.ErrorIs(t, s.Upsert(ctx, named("", "No Invoice", 5)), donor.ErrInvalidRecord)

		record := named("INV9", "Bad Type", 5)
		record.DonationType = "public"
		assert.ErrorIs(t, s.Upsert(ctx, record), donor.ErrInvalidRecord)

		_, err := s.GetByInvoiceID(ctx, "INV9")
		assert.Equal(t, donor.ErrNotFound, err)
	})
}
