package repository

import (
	"context"
	"errors"

	"github.com/champfund/donation-gateway/internal/model"
	"github.com/champfund/donation-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no donation matches the query.
	ErrNotFound = errors.New("donation not found")
)

type DonationRepository struct {
	*pg.DB
}

func NewDonationRepository(db *pg.DB) *DonationRepository {
	return &DonationRepository{
		db,
	}
}

func (r *DonationRepository) Create(ctx context.Context, d *model.Donation) (*model.Donation, error) {
	entity := toDonationEntity(d)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toDonationModel(entity), nil
}

func (r *DonationRepository) List(ctx context.Context, f model.DonationFilter) ([]*model.Donation, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&DonationEntity{})

	if f.PhoneNumber != nil && *f.PhoneNumber != "" {
		q = q.Where("phone_number = ?", *f.PhoneNumber)
	}
	if f.Reference != nil && *f.Reference != "" {
		q = q.Where("reference = ?", *f.Reference)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*DonationEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toDonationModels(entities), total, nil
}

// FindLatestPending returns the newest donation for the phone/amount pair
// that has no receipt stamped yet. Reconciliation has no hard correlation
// key to work with, so this is deliberately a loose match.
func (r *DonationRepository) FindLatestPending(ctx context.Context, phoneNumber string, amount int64) (*model.Donation, error) {
	var entity DonationEntity
	err := r.Write(ctx).WithContext(ctx).
		Where("phone_number = ? AND donation_amount = ? AND (mpesa_transaction_id IS NULL OR mpesa_transaction_id = '')", phoneNumber, amount).
		Order("created_at DESC").
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toDonationModel(&entity), nil
}

// SetTransactionID stamps the gateway receipt number onto a donation.
func (r *DonationRepository) SetTransactionID(ctx context.Context, id int64, transactionID string) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&DonationEntity{}).
		Where("id = ?", id).
		Update("mpesa_transaction_id", transactionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DonationRepository) GetDonationsWithPayments(ctx context.Context, f model.DonationFilter) ([]*model.DonationWithPayments, int64, error) {
	query := r.buildDonationsWithPaymentsQuery(ctx)

	if f.PhoneNumber != nil && *f.PhoneNumber != "" {
		query = query.Where("d.phone_number = ?", *f.PhoneNumber)
	}
	if f.Reference != nil && *f.Reference != "" {
		query = query.Where("d.reference = ?", *f.Reference)
	}
	if f.From != nil {
		query = query.Where("d.created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("d.created_at < ?", *f.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "d.created_at ASC"
	if f.Desc {
		order = "d.created_at DESC"
	}
	query = query.Order(order)

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	query = query.Limit(limit).Offset(offset)

	var entities []*DonationWithPaymentsEntity
	if err := query.Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toDonationWithPaymentsModels(entities), total, nil
}

// buildDonationsWithPaymentsQuery joins payment logs onto donations by the
// loose phone/amount correlation and aggregates them as JSON.
func (r *DonationRepository) buildDonationsWithPaymentsQuery(ctx context.Context) *gorm.DB {
	return r.Read(ctx).WithContext(ctx).
		Table("donations AS d").
		Select(`
            d.id                                    AS id,
            d.donor_name                            AS donor_name,
            d.phone_number                          AS phone_number,
            d.email                                 AS email,
            d.donation_amount                       AS donation_amount,
            d.mpesa_transaction_id                  AS mpesa_transaction_id,
            d.reference                             AS reference,
            d.created_at                            AS created_at,

            COALESCE(
                json_agg(
                    json_build_object(
                        'id', pl.id,
                        'transaction_id', pl.transaction_id,
                        'phone_number', pl.phone_number,
                        'amount', pl.amount,
                        'transaction_type', pl.transaction_type,
                        'account_reference', pl.account_reference,
                        'description', pl.description,
                        'status', pl.status,
                        'date_received', pl.date_received
                    )
                    ORDER BY pl.id DESC
                ) FILTER (WHERE pl.id IS NOT NULL),
                '[]'::json
            )                                       AS payment_logs
        `).
		Joins("LEFT JOIN payment_logs AS pl ON pl.phone_number = d.phone_number AND pl.amount = d.donation_amount").
		Group(`
            d.id,
            d.donor_name,
            d.phone_number,
            d.email,
            d.donation_amount,
            d.mpesa_transaction_id,
            d.reference,
            d.created_at
        `)
}
