package repository

import (
	"encoding/json"
	"time"

	"github.com/champfund/donation-gateway/internal/model"
)

type DonationWithPaymentsEntity struct {
	ID                 int64           `gorm:"column:id"`
	DonorName          string          `gorm:"column:donor_name"`
	PhoneNumber        string          `gorm:"column:phone_number"`
	Email              string          `gorm:"column:email"`
	Amount             int64           `gorm:"column:donation_amount"`
	MpesaTransactionID string          `gorm:"column:mpesa_transaction_id"`
	Reference          string          `gorm:"column:reference"`
	CreatedAt          time.Time       `gorm:"column:created_at"`
	PaymentLogs        json.RawMessage `gorm:"column:payment_logs;type:json"`
}

func toDonationWithPaymentsModel(e *DonationWithPaymentsEntity) *model.DonationWithPayments {
	if e == nil {
		return nil
	}

	d := &model.DonationWithPayments{
		ID:                 e.ID,
		DonorName:          e.DonorName,
		PhoneNumber:        e.PhoneNumber,
		Email:              e.Email,
		Amount:             e.Amount,
		MpesaTransactionID: e.MpesaTransactionID,
		Reference:          e.Reference,
		CreatedAt:          e.CreatedAt,
	}

	var logs []*model.PaymentLog
	if len(e.PaymentLogs) > 0 && string(e.PaymentLogs) != "[]" {
		if err := json.Unmarshal(e.PaymentLogs, &logs); err == nil {
			d.PaymentLogs = logs
		} else {
			d.PaymentLogs = []*model.PaymentLog{}
		}
	} else {
		d.PaymentLogs = []*model.PaymentLog{}
	}

	return d
}

func toDonationWithPaymentsModels(entities []*DonationWithPaymentsEntity) []*model.DonationWithPayments {
	if entities == nil {
		return nil
	}
	models := make([]*model.DonationWithPayments, len(entities))
	for i, e := range entities {
		models[i] = toDonationWithPaymentsModel(e)
	}
	return models
}
