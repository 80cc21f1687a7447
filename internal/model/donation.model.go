package model

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrDonorNameRequired = errors.New("donor_name is required")
	ErrPhoneRequired     = errors.New("phone_number is required")
	ErrInvalidAmount     = errors.New("donation_amount must be a positive integer")
)

// Donation is created once per submission. mpesa_transaction_id starts
// empty and is stamped by the reconciler once a matching callback lands;
// everything else is immutable after creation.
type Donation struct {
	ID                 int64     `json:"id"                   db:"id"                   gorm:"primaryKey;autoIncrement;column:id"`
	DonorName          string    `json:"donor_name"           db:"donor_name"           gorm:"column:donor_name;not null"`
	PhoneNumber        string    `json:"phone_number"         db:"phone_number"         gorm:"column:phone_number;not null;index"` // E.164-like, e.g. 254712345678
	Email              string    `json:"email"                db:"email"                gorm:"column:email"`
	Amount             int64     `json:"donation_amount"      db:"donation_amount"      gorm:"column:donation_amount;not null"` // integer currency units, the gateway accepts no decimals
	MpesaTransactionID string    `json:"mpesa_transaction_id" db:"mpesa_transaction_id" gorm:"column:mpesa_transaction_id;index"`
	Reference          string    `json:"reference"            db:"reference"            gorm:"column:reference"`
	CreatedAt          time.Time `json:"created_at"           db:"created_at"           gorm:"column:created_at;autoCreateTime"`
}

func (Donation) TableName() string { return "donations" }

// DonationCreateRequest carries the raw submission fields. Amount stays a
// string until Validate coerces it, matching the form-encoded inbound shape.
type DonationCreateRequest struct {
	DonorName          string
	PhoneNumber        string
	Email              string
	Amount             string
	MpesaTransactionID string
	Reference          string
}

func (p DonationCreateRequest) Validate() error {
	if strings.TrimSpace(p.DonorName) == "" {
		return ErrDonorNameRequired
	}
	if strings.TrimSpace(p.PhoneNumber) == "" {
		return ErrPhoneRequired
	}
	if _, err := p.AmountUnits(); err != nil {
		return err
	}
	return nil
}

// AmountUnits coerces the submitted amount into positive integer currency
// units.
func (p DonationCreateRequest) AmountUnits() (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(p.Amount), 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidAmount
	}
	return n, nil
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrDonorNameRequired) ||
		errors.Is(err, ErrPhoneRequired) ||
		errors.Is(err, ErrInvalidAmount)
}

// DonationResult reports both halves of an initiation: the recorded donation
// (always present on success) and the push outcome. PushErr being non-nil
// means the STK prompt was not sent; the donation record stands regardless.
type DonationResult struct {
	Message  string
	Donation *Donation
	Push     json.RawMessage // gateway response body, passed through verbatim
	PushErr  error
}

// DonationFilter controls List queries.
type DonationFilter struct {
	PhoneNumber *string
	Reference   *string
	From        *time.Time
	To          *time.Time
	Limit       int // default 50
	Offset      int
	Desc        bool // order by created_at
}

// DonationWithPayments is the read model for the donations/payment-logs
// join. Payment logs are matched loosely on phone number and amount since
// the callback carries no donation id.
type DonationWithPayments struct {
	ID                 int64         `json:"id"`
	DonorName          string        `json:"donor_name"`
	PhoneNumber        string        `json:"phone_number"`
	Email              string        `json:"email"`
	Amount             int64         `json:"donation_amount"`
	MpesaTransactionID string        `json:"mpesa_transaction_id"`
	Reference          string        `json:"reference"`
	CreatedAt          time.Time     `json:"created_at"`
	PaymentLogs        []*PaymentLog `json:"payment_logs"`
}
