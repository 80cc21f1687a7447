package services

import (
	"context"
	"encoding/json"
	"testing"

	gateway "github.com/champfund/donation-gateway/internal/gateways"
	"github.com/champfund/donation-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDonationRepository struct {
	mock.Mock
}

func (m *MockDonationRepository) Create(ctx context.Context, d *model.Donation) (*model.Donation, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Donation), args.Error(1)
}

func (m *MockDonationRepository) List(ctx context.Context, f model.DonationFilter) ([]*model.Donation, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Donation), args.Get(1).(int64), args.Error(2)
}

func (m *MockDonationRepository) GetDonationsWithPayments(ctx context.Context, f model.DonationFilter) ([]*model.DonationWithPayments, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.DonationWithPayments), args.Get(1).(int64), args.Error(2)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) STKPush(ctx context.Context, req *gateway.STKPushRequest) (json.RawMessage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func TestDonationService_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("successful initiation", func(t *testing.T) {
		repo := new(MockDonationRepository)
		gw := new(MockPaymentGateway)
		service := NewDonationService(repo, gw)

		req := model.DonationCreateRequest{
			DonorName:   "Jane Wanjiku",
			PhoneNumber: "254712345678",
			Email:       "jane@example.com",
			Amount:      "500",
		}

		created := &model.Donation{
			ID:          1,
			DonorName:   "Jane Wanjiku",
			PhoneNumber: "254712345678",
			Amount:      500,
		}
		pushResp := json.RawMessage(`{"CheckoutRequestID":"ws_CO_123","ResponseCode":"0"}`)

		repo.On("Create", ctx, mock.AnythingOfType("*model.Donation")).Return(created, nil)
		gw.On("STKPush", ctx, mock.AnythingOfType("*gateway.STKPushRequest")).Return(pushResp, nil)

		result, err := service.Initiate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "Donation recorded successfully", result.Message)
		assert.Equal(t, int64(1), result.Donation.ID)
		assert.NoError(t, result.PushErr)
		assert.JSONEq(t, string(pushResp), string(result.Push))

		repo.AssertExpectations(t)
		gw.AssertExpectations(t)
	})

	t.Run("amount coercion", func(t *testing.T) {
		repo := new(MockDonationRepository)
		gw := new(MockPaymentGateway)
		service := NewDonationService(repo, gw)

		repo.On("Create", ctx, mock.MatchedBy(func(d *model.Donation) bool {
			return d.Amount == 750
		})).Return(&model.Donation{ID: 2, Amount: 750, PhoneNumber: "254700000000"}, nil)
		gw.On("STKPush", ctx, mock.MatchedBy(func(r *gateway.STKPushRequest) bool {
			return r.Amount == 750
		})).Return(json.RawMessage(`{}`), nil)

		_, err := service.Initiate(ctx, model.DonationCreateRequest{
			DonorName:   "Donor",
			PhoneNumber: "254700000000",
			Amount:      " 750 ",
		})
		require.NoError(t, err)

		repo.AssertExpectations(t)
		gw.AssertExpectations(t)
	})

	t.Run("push failure keeps donation", func(t *testing.T) {
		repo := new(MockDonationRepository)
		gw := new(MockPaymentGateway)
		service := NewDonationService(repo, gw)

		created := &model.Donation{ID: 3, DonorName: "Donor", PhoneNumber: "254711111111", Amount: 100}
		pushErr := &gateway.PushError{Status: 503, Body: "service unavailable"}

		repo.On("Create", ctx, mock.AnythingOfType("*model.Donation")).Return(created, nil)
		gw.On("STKPush", ctx, mock.AnythingOfType("*gateway.STKPushRequest")).Return(nil, pushErr)

		result, err := service.Initiate(ctx, model.DonationCreateRequest{
			DonorName:   "Donor",
			PhoneNumber: "254711111111",
			Amount:      "100",
		})
		require.NoError(t, err)
		assert.NotNil(t, result.Donation)
		assert.Error(t, result.PushErr)
		assert.Nil(t, result.Push)

		repo.AssertExpectations(t)
		gw.AssertExpectations(t)
	})

	t.Run("validation failures", func(t *testing.T) {
		repo := new(MockDonationRepository)
		gw := new(MockPaymentGateway)
		service := NewDonationService(repo, gw)

		cases := []struct {
			name string
			req  model.DonationCreateRequest
			want error
		}{
			{"missing donor name", model.DonationCreateRequest{PhoneNumber: "254712345678", Amount: "100"}, model.ErrDonorNameRequired},
			{"missing phone", model.DonationCreateRequest{DonorName: "Donor", Amount: "100"}, model.ErrPhoneRequired},
			{"non-numeric amount", model.DonationCreateRequest{DonorName: "Donor", PhoneNumber: "254712345678", Amount: "abc"}, model.ErrInvalidAmount},
			{"zero amount", model.DonationCreateRequest{DonorName: "Donor", PhoneNumber: "254712345678", Amount: "0"}, model.ErrInvalidAmount},
			{"negative amount", model.DonationCreateRequest{DonorName: "Donor", PhoneNumber: "254712345678", Amount: "-5"}, model.ErrInvalidAmount},
			{"decimal amount", model.DonationCreateRequest{DonorName: "Donor", PhoneNumber: "254712345678", Amount: "10.5"}, model.ErrInvalidAmount},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				result, err := service.Initiate(ctx, tc.req)
				assert.ErrorIs(t, err, tc.want)
				assert.Nil(t, result)
			})
		}

		repo.AssertNotCalled(t, "Create")
		gw.AssertNotCalled(t, "STKPush")
	})

	t.Run("persistence failure is hard", func(t *testing.T) {
		repo := new(MockDonationRepository)
		gw := new(MockPaymentGateway)
		service := NewDonationService(repo, gw)

		repo.On("Create", ctx, mock.AnythingOfType("*model.Donation")).Return(nil, assert.AnError)

		result, err := service.Initiate(ctx, model.DonationCreateRequest{
			DonorName:   "Donor",
			PhoneNumber: "254712345678",
			Amount:      "100",
		})
		assert.Error(t, err)
		assert.Nil(t, result)

		gw.AssertNotCalled(t, "STKPush")
	})
}

func TestDonationService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("successful list", func(t *testing.T) {
		repo := new(MockDonationRepository)
		service := NewDonationService(repo, nil)

		phone := "254712345678"
		filter := model.DonationFilter{PhoneNumber: &phone, Limit: 10}

		expected := []*model.Donation{
			{ID: 1, PhoneNumber: phone, Amount: 100},
			{ID: 2, PhoneNumber: phone, Amount: 200},
		}

		repo.On("List", ctx, filter).Return(expected, int64(2), nil)

		donations, total, err := service.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, donations, 2)

		repo.AssertExpectations(t)
	})
}

func TestDonationService_GetDonationsWithPayments(t *testing.T) {
	ctx := context.Background()

	repo := new(MockDonationRepository)
	service := NewDonationService(repo, nil)

	filter := model.DonationFilter{Limit: 10}
	expected := []*model.DonationWithPayments{
		{
			ID:          1,
			PhoneNumber: "254712345678",
			Amount:      100,
			PaymentLogs: []*model.PaymentLog{
				{ID: 1, TransactionID: "SGR7OWJ2XA", Status: model.PaymentStatusSuccess},
			},
		},
	}

	repo.On("GetDonationsWithPayments", ctx, filter).Return(expected, int64(1), nil)

	donations, total, err := service.GetDonationsWithPayments(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, donations, 1)
	assert.Len(t, donations[0].PaymentLogs, 1)

	repo.AssertExpectations(t)
}
