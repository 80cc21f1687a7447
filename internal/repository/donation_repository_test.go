package repository

import (
	"context"
	"testing"
	"time"

	"github.com/champfund/donation-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDonationRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDonationRepository(db)
	ctx := context.Background()

	t.Run("create donation successfully", func(t *testing.T) {
		d := &model.Donation{
			DonorName:   "Jane Wanjiku",
			PhoneNumber: "254712345678",
			Email:       "jane@example.com",
			Amount:      500,
			Reference:   "Donation",
		}

		created, err := repo.Create(ctx, d)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, d.DonorName, created.DonorName)
		assert.Equal(t, d.PhoneNumber, created.PhoneNumber)
		assert.Equal(t, d.Amount, created.Amount)
		assert.Empty(t, created.MpesaTransactionID)
		assert.NotZero(t, created.CreatedAt)
	})

	t.Run("create multiple donations", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			d := &model.Donation{
				DonorName:   "Repeat Donor",
				PhoneNumber: "254700000001",
				Amount:      int64(100 * (i + 1)),
			}
			_, err := repo.Create(ctx, d)
			require.NoError(t, err)
		}
	})
}

func TestDonationRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDonationRepository(db)
	ctx := context.Background()

	phone := "254722000111"
	for i := 0; i < 5; i++ {
		d := &model.Donation{
			DonorName:   "List Donor",
			PhoneNumber: phone,
			Amount:      250,
		}
		_, err := repo.Create(ctx, d)
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	t.Run("list all donations", func(t *testing.T) {
		filter := model.DonationFilter{
			PhoneNumber: &phone,
			Limit:       10,
			Offset:      0,
		}

		donations, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, donations, 5)
	})

	t.Run("list with pagination", func(t *testing.T) {
		filter := model.DonationFilter{
			PhoneNumber: &phone,
			Limit:       2,
			Offset:      0,
		}

		donations, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, donations, 2)
	})

	t.Run("list with offset", func(t *testing.T) {
		filter := model.DonationFilter{
			PhoneNumber: &phone,
			Limit:       2,
			Offset:      3,
		}

		donations, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, donations, 2)
	})

	t.Run("list with desc order", func(t *testing.T) {
		filter := model.DonationFilter{
			PhoneNumber: &phone,
			Limit:       10,
			Offset:      0,
			Desc:        true,
		}

		donations, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		for i := 0; i < len(donations)-1; i++ {
			assert.True(t, donations[i].CreatedAt.After(donations[i+1].CreatedAt) || donations[i].CreatedAt.Equal(donations[i+1].CreatedAt))
		}
	})

	t.Run("list with time range", func(t *testing.T) {
		now := time.Now()
		from := now.Add(-1 * time.Hour)
		to := now.Add(1 * time.Hour)

		filter := model.DonationFilter{
			PhoneNumber: &phone,
			From:        &from,
			To:          &to,
			Limit:       10,
			Offset:      0,
		}

		donations, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, donations, 5)
	})

	t.Run("list with no results", func(t *testing.T) {
		missing := "254799999999"
		filter := model.DonationFilter{
			PhoneNumber: &missing,
			Limit:       10,
			Offset:      0,
		}

		donations, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
		assert.Len(t, donations, 0)
	})

	t.Run("list with default limit", func(t *testing.T) {
		filter := model.DonationFilter{
			PhoneNumber: &phone,
			Limit:       0,
			Offset:      0,
		}

		donations, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, donations, 5)
	})
}

func TestDonationRepository_FindLatestPending(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDonationRepository(db)
	ctx := context.Background()

	phone := "254733111222"

	t.Run("no pending donation", func(t *testing.T) {
		_, err := repo.FindLatestPending(ctx, phone, 100)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("newest pending donation wins", func(t *testing.T) {
		first, err := repo.Create(ctx, &model.Donation{
			DonorName:   "Early Donor",
			PhoneNumber: phone,
			Amount:      100,
		})
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)

		second, err := repo.Create(ctx, &model.Donation{
			DonorName:   "Late Donor",
			PhoneNumber: phone,
			Amount:      100,
		})
		require.NoError(t, err)

		found, err := repo.FindLatestPending(ctx, phone, 100)
		require.NoError(t, err)
		assert.Equal(t, second.ID, found.ID)
		assert.NotEqual(t, first.ID, found.ID)
	})

	t.Run("stamped donations are skipped", func(t *testing.T) {
		d, err := repo.Create(ctx, &model.Donation{
			DonorName:   "Stamped Donor",
			PhoneNumber: phone,
			Amount:      777,
		})
		require.NoError(t, err)

		err = repo.SetTransactionID(ctx, d.ID, "SGR7OWJ2XA")
		require.NoError(t, err)

		_, err = repo.FindLatestPending(ctx, phone, 777)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("amount must match", func(t *testing.T) {
		_, err := repo.Create(ctx, &model.Donation{
			DonorName:   "Mismatch Donor",
			PhoneNumber: phone,
			Amount:      300,
		})
		require.NoError(t, err)

		_, err = repo.FindLatestPending(ctx, phone, 301)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDonationRepository_SetTransactionID(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDonationRepository(db)
	ctx := context.Background()

	t.Run("stamp receipt on donation", func(t *testing.T) {
		d, err := repo.Create(ctx, &model.Donation{
			DonorName:   "Receipt Donor",
			PhoneNumber: "254744555666",
			Amount:      1000,
		})
		require.NoError(t, err)

		err = repo.SetTransactionID(ctx, d.ID, "QGH1ABCXYZ")
		require.NoError(t, err)

		found, _, err := repo.List(ctx, model.DonationFilter{PhoneNumber: &d.PhoneNumber, Limit: 1})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "QGH1ABCXYZ", found[0].MpesaTransactionID)
	})

	t.Run("missing donation", func(t *testing.T) {
		err := repo.SetTransactionID(ctx, 999999, "NOPE")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDonationRepository_GetDonationsWithPayments(t *testing.T) {
	t.Skip("Skipping due to PostgreSQL-specific JSON aggregation functions not supported in SQLite")
}
