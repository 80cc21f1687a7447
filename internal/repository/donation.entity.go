package repository

import (
	"time"

	"github.com/champfund/donation-gateway/internal/model"
)

type DonationEntity struct {
	ID                 int64     `db:"id"                   gorm:"primaryKey;autoIncrement;column:id"`
	DonorName          string    `db:"donor_name"           gorm:"column:donor_name;not null"`
	PhoneNumber        string    `db:"phone_number"         gorm:"column:phone_number;not null;index"`
	Email              string    `db:"email"                gorm:"column:email"`
	Amount             int64     `db:"donation_amount"      gorm:"column:donation_amount;not null"`
	MpesaTransactionID string    `db:"mpesa_transaction_id" gorm:"column:mpesa_transaction_id;index"`
	Reference          string    `db:"reference"            gorm:"column:reference"`
	CreatedAt          time.Time `db:"created_at"           gorm:"column:created_at;autoCreateTime"`
}

func (DonationEntity) TableName() string {
	return "donations"
}

func toDonationEntity(d *model.Donation) *DonationEntity {
	if d == nil {
		return nil
	}
	return &DonationEntity{
		ID:                 d.ID,
		DonorName:          d.DonorName,
		PhoneNumber:        d.PhoneNumber,
		Email:              d.Email,
		Amount:             d.Amount,
		MpesaTransactionID: d.MpesaTransactionID,
		Reference:          d.Reference,
		CreatedAt:          d.CreatedAt,
	}
}

func toDonationModel(e *DonationEntity) *model.Donation {
	if e == nil {
		return nil
	}
	return &model.Donation{
		ID:                 e.ID,
		DonorName:          e.DonorName,
		PhoneNumber:        e.PhoneNumber,
		Email:              e.Email,
		Amount:             e.Amount,
		MpesaTransactionID: e.MpesaTransactionID,
		Reference:          e.Reference,
		CreatedAt:          e.CreatedAt,
	}
}

func toDonationModels(entities []*DonationEntity) []*model.Donation {
	if entities == nil {
		return nil
	}
	models := make([]*model.Donation, len(entities))
	for i, e := range entities {
		models[i] = toDonationModel(e)
	}
	return models
}
