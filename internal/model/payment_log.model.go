package model

import "time"

type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "Success"
	PaymentStatusFailed  PaymentStatus = "Failed"
)

type TransactionType string

const TransactionTypePaybill TransactionType = "Paybill"

// PaymentLog is an append-only record of one callback delivery. Redelivered
// callbacks produce additional rows; the raw payload is kept for audit.
type PaymentLog struct {
	ID               int64           `json:"id"                db:"id"                gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID    string          `json:"transaction_id"    db:"transaction_id"    gorm:"column:transaction_id;index"` // gateway receipt number, empty on failed pushes
	PhoneNumber      string          `json:"phone_number"      db:"phone_number"      gorm:"column:phone_number;index"`
	Amount           float64         `json:"amount"            db:"amount"            gorm:"column:amount"`
	TransactionType  TransactionType `json:"transaction_type"  db:"transaction_type"  gorm:"column:transaction_type;not null"`
	AccountReference string          `json:"account_reference" db:"account_reference" gorm:"column:account_reference"`
	Description      string          `json:"description"       db:"description"       gorm:"column:description"`
	RawCallback      string          `json:"raw_callback"      db:"raw_callback"      gorm:"column:raw_callback"`
	Status           PaymentStatus   `json:"status"            db:"status"            gorm:"column:status;not null;index"`
	DateReceived     time.Time       `json:"date_received"     db:"date_received"     gorm:"column:date_received;not null"`
}

func (PaymentLog) TableName() string { return "payment_logs" }

// PaymentLogFilter controls List queries.
type PaymentLogFilter struct {
	TransactionID *string
	PhoneNumber   *string
	Statuses      []PaymentStatus
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
	Desc          bool
}
