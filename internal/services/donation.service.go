package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gateway "github.com/champfund/donation-gateway/internal/gateways"
	"github.com/champfund/donation-gateway/internal/model"
	"github.com/champfund/donation-gateway/pkg/logger"
)

var ErrNotFound = errors.New("error notfound")

type DonationRepository interface {
	Create(ctx context.Context, d *model.Donation) (*model.Donation, error)
	List(ctx context.Context, f model.DonationFilter) ([]*model.Donation, int64, error) // results, totalCount
	GetDonationsWithPayments(ctx context.Context, f model.DonationFilter) ([]*model.DonationWithPayments, int64, error)
}

type PaymentGateway interface {
	STKPush(ctx context.Context, req *gateway.STKPushRequest) (json.RawMessage, error)
}

type DonationService struct {
	donationRepo DonationRepository
	gateway      PaymentGateway
}

func NewDonationService(donationRepo DonationRepository, gateway PaymentGateway) *DonationService {
	return &DonationService{
		donationRepo: donationRepo,
		gateway:      gateway,
	}
}

// Initiate records the donation and then asks the payment gateway to push
// an STK prompt to the donor's phone. The record is written first and is
// never rolled back: a failed push leaves the donation pending so the donor
// can be prompted again, and PushErr carries the failure for the caller to
// report.
func (s *DonationService) Initiate(ctx context.Context, p model.DonationCreateRequest) (*model.DonationResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	amount, err := p.AmountUnits()
	if err != nil {
		return nil, err
	}

	d := &model.Donation{
		DonorName:          p.DonorName,
		PhoneNumber:        p.PhoneNumber,
		Email:              p.Email,
		Amount:             amount,
		MpesaTransactionID: p.MpesaTransactionID,
		Reference:          p.Reference,
	}

	created, err := s.donationRepo.Create(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("create donation: %w", err)
	}

	result := &model.DonationResult{
		Message:  "Donation recorded successfully",
		Donation: created,
	}

	resp, err := s.gateway.STKPush(ctx, &gateway.STKPushRequest{
		PhoneNumber:      created.PhoneNumber,
		Amount:           created.Amount,
		AccountReference: created.Reference,
	})
	if err != nil {
		logger.Warn("STK push failed, donation kept pending",
			"donation_id", created.ID,
			"phone_number", created.PhoneNumber,
			"error", err)
		result.PushErr = err
		return result, nil
	}

	result.Push = resp
	return result, nil
}

func (s *DonationService) List(ctx context.Context, f model.DonationFilter) ([]*model.Donation, int64, error) {
	return s.donationRepo.List(ctx, f)
}

func (s *DonationService) GetDonationsWithPayments(ctx context.Context, f model.DonationFilter) ([]*model.DonationWithPayments, int64, error) {
	return s.donationRepo.GetDonationsWithPayments(ctx, f)
}
