package repository

import (
	"time"

	"github.com/champfund/donation-gateway/internal/model"
)

type PaymentLogEntity struct {
	ID               int64     `db:"id"                gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID    string    `db:"transaction_id"    gorm:"column:transaction_id;index"`
	PhoneNumber      string    `db:"phone_number"      gorm:"column:phone_number;not null;index"`
	Amount           float64   `db:"amount"            gorm:"column:amount;not null"`
	TransactionType  string    `db:"transaction_type"  gorm:"column:transaction_type;not null"`
	AccountReference string    `db:"account_reference" gorm:"column:account_reference"`
	Description      string    `db:"description"       gorm:"column:description"`
	RawCallback      string    `db:"raw_callback"      gorm:"column:raw_callback;type:text"`
	Status           string    `db:"status"            gorm:"column:status;not null;index"`
	DateReceived     time.Time `db:"date_received"     gorm:"column:date_received;not null"`
}

func (PaymentLogEntity) TableName() string {
	return "payment_logs"
}

func toPaymentLogEntity(m *model.PaymentLog) *PaymentLogEntity {
	if m == nil {
		return nil
	}
	return &PaymentLogEntity{
		ID:               m.ID,
		TransactionID:    m.TransactionID,
		PhoneNumber:      m.PhoneNumber,
		Amount:           m.Amount,
		TransactionType:  string(m.TransactionType),
		AccountReference: m.AccountReference,
		Description:      m.Description,
		RawCallback:      m.RawCallback,
		Status:           string(m.Status),
		DateReceived:     m.DateReceived,
	}
}

func toPaymentLogModel(e *PaymentLogEntity) *model.PaymentLog {
	if e == nil {
		return nil
	}
	return &model.PaymentLog{
		ID:               e.ID,
		TransactionID:    e.TransactionID,
		PhoneNumber:      e.PhoneNumber,
		Amount:           e.Amount,
		TransactionType:  model.TransactionType(e.TransactionType),
		AccountReference: e.AccountReference,
		Description:      e.Description,
		RawCallback:      e.RawCallback,
		Status:           model.PaymentStatus(e.Status),
		DateReceived:     e.DateReceived,
	}
}

func toPaymentLogModels(entities []*PaymentLogEntity) []*model.PaymentLog {
	if entities == nil {
		return nil
	}
	models := make([]*model.PaymentLog, len(entities))
	for i, e := range entities {
		models[i] = toPaymentLogModel(e)
	}
	return models
}
