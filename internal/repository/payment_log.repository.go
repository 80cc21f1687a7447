package repository

import (
	"context"

	"github.com/champfund/donation-gateway/internal/model"
	"github.com/champfund/donation-gateway/pkg/pg"
)

type PaymentLogRepository struct {
	*pg.DB
}

func NewPaymentLogRepository(db *pg.DB) *PaymentLogRepository {
	return &PaymentLogRepository{
		db,
	}
}

func (r *PaymentLogRepository) Create(ctx context.Context, pl *model.PaymentLog) (*model.PaymentLog, error) {
	entity := toPaymentLogEntity(pl)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toPaymentLogModel(entity), nil
}

func (r *PaymentLogRepository) List(ctx context.Context, f model.PaymentLogFilter) ([]*model.PaymentLog, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&PaymentLogEntity{})

	if f.PhoneNumber != nil && *f.PhoneNumber != "" {
		q = q.Where("phone_number = ?", *f.PhoneNumber)
	}
	if f.TransactionID != nil && *f.TransactionID != "" {
		q = q.Where("transaction_id = ?", *f.TransactionID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.From != nil {
		q = q.Where("date_received >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("date_received < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "date_received"
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

	var entities []*PaymentLogEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toPaymentLogModels(entities), total, nil
}

// CountByTransactionID reports how many callback deliveries have been logged
// for a given gateway receipt. Duplicate deliveries each get their own row.
func (r *PaymentLogRepository) CountByTransactionID(ctx context.Context, transactionID string) (int64, error) {
	var total int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&PaymentLogEntity{}).
		Where("transaction_id = ?", transactionID).
		Count(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
