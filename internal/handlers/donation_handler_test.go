package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/champfund/donation-gateway/internal/model"
	xhttp "github.com/champfund/donation-gateway/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockDonationService struct {
	mock.Mock
}

func (m *MockDonationService) Initiate(ctx context.Context, p model.DonationCreateRequest) (*model.DonationResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DonationResult), args.Error(1)
}

func (m *MockDonationService) List(ctx context.Context, f model.DonationFilter) ([]*model.Donation, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Donation), args.Get(1).(int64), args.Error(2)
}

func (m *MockDonationService) GetDonationsWithPayments(ctx context.Context, f model.DonationFilter) ([]*model.DonationWithPayments, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.DonationWithPayments), args.Get(1).(int64), args.Error(2)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func setupFormContext(path string, form url.Values) *xhttp.RequestCtx {
	ctx := setupTestContext("POST", path, []byte(form.Encode()))
	ctx.Request.Header.SetContentType("application/x-www-form-urlencoded")
	return ctx
}

func TestDonationHandler_CreateDonation(t *testing.T) {
	t.Run("successful donation", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc)

		form := url.Values{}
		form.Set("donor_name", "Jane Wanjiku")
		form.Set("phone_number", "254712345678")
		form.Set("email", "jane@example.com")
		form.Set("donation_amount", "500")

		result := &model.DonationResult{
			Message:  "Donation recorded successfully",
			Donation: &model.Donation{ID: 42, DonorName: "Jane Wanjiku", PhoneNumber: "254712345678", Amount: 500},
			Push:     json.RawMessage(`{"CheckoutRequestID":"ws_CO_123","ResponseCode":"0"}`),
		}

		svc.On("Initiate", mock.Anything, mock.MatchedBy(func(p model.DonationCreateRequest) bool {
			return p.DonorName == "Jane Wanjiku" && p.PhoneNumber == "254712345678" && p.Amount == "500"
		})).Return(result, nil)

		ctx := setupFormContext("/donations", form)
		handler.CreateDonation(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var response createDonationResponse
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, "Donation recorded successfully", response.Message)
		assert.Equal(t, int64(42), response.DonationID)
		assert.JSONEq(t, string(result.Push), string(response.STKPushResponse))

		svc.AssertExpectations(t)
	})

	t.Run("all form fields carried through", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc)

		form := url.Values{}
		form.Set("donor_name", "Jane Wanjiku")
		form.Set("phone_number", "254712345678")
		form.Set("email", "jane@example.com")
		form.Set("donation_amount", "500")
		form.Set("mpesa_transaction_id", "NLJ123")
		form.Set("reference", "Fundraiser")

		result := &model.DonationResult{
			Message:  "Donation recorded successfully",
			Donation: &model.Donation{ID: 43, Amount: 500},
			Push:     json.RawMessage(`{}`),
		}

		var captured model.DonationCreateRequest
		svc.On("Initiate", mock.Anything, mock.MatchedBy(func(p model.DonationCreateRequest) bool {
			captured = p
			return true
		})).Return(result, nil)

		ctx := setupFormContext("/donations", form)
		handler.CreateDonation(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())
		assert.Equal(t, "jane@example.com", captured.Email)
		assert.Equal(t, "NLJ123", captured.MpesaTransactionID)
		assert.Equal(t, "Fundraiser", captured.Reference)

		svc.AssertExpectations(t)
	})

	t.Run("validation error", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc)

		form := url.Values{}
		form.Set("phone_number", "254712345678")
		form.Set("donation_amount", "500")

		svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, model.ErrDonorNameRequired)

		ctx := setupFormContext("/donations", form)
		handler.CreateDonation(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())

		var response map[string]string
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, model.ErrDonorNameRequired.Error(), response["error"])

		svc.AssertExpectations(t)
	})

	t.Run("push failure still records donation", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc)

		form := url.Values{}
		form.Set("donor_name", "Donor")
		form.Set("phone_number", "254712345678")
		form.Set("donation_amount", "100")

		result := &model.DonationResult{
			Message:  "Donation recorded successfully",
			Donation: &model.Donation{ID: 7, Amount: 100},
			PushErr:  errors.New("push request failed: timeout"),
		}

		svc.On("Initiate", mock.Anything, mock.Anything).Return(result, nil)

		ctx := setupFormContext("/donations", form)
		handler.CreateDonation(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var response createDonationResponse
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, int64(7), response.DonationID)

		var push map[string]string
		require.NoError(t, json.Unmarshal(response.STKPushResponse, &push))
		assert.Contains(t, push["error"], "push request failed")

		svc.AssertExpectations(t)
	})

	t.Run("persistence error", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc)

		form := url.Values{}
		form.Set("donor_name", "Donor")
		form.Set("phone_number", "254712345678")
		form.Set("donation_amount", "100")

		svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, errors.New("create donation: connection refused"))

		ctx := setupFormContext("/donations", form)
		handler.CreateDonation(ctx)

		assert.Equal(t, 500, ctx.Response.StatusCode())

		svc.AssertExpectations(t)
	})

	t.Run("query string fallback", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc)

		result := &model.DonationResult{
			Message:  "Donation recorded successfully",
			Donation: &model.Donation{ID: 8, Amount: 250},
			Push:     json.RawMessage(`{}`),
		}

		svc.On("Initiate", mock.Anything, mock.MatchedBy(func(p model.DonationCreateRequest) bool {
			return p.DonorName == "Query Donor" && p.Amount == "250"
		})).Return(result, nil)

		ctx := setupTestContext("POST", "/donations?donor_name=Query+Donor&phone_number=254700000000&donation_amount=250", nil)
		handler.CreateDonation(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		svc.AssertExpectations(t)
	})
}

func TestDonationHandler_ListDonations(t *testing.T) {
	t.Run("successful list", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc)

		expected := []*model.Donation{
			{ID: 1, PhoneNumber: "254712345678", Amount: 100},
			{ID: 2, PhoneNumber: "254712345678", Amount: 200},
		}

		svc.On("List", mock.Anything, mock.AnythingOfType("model.DonationFilter")).
			Return(expected, int64(2), nil)

		ctx := setupTestContext("GET", "/donations?phone_number=254712345678&limit=10", nil)
		handler.ListDonations(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response listResponse
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, int64(2), response.Total)
		assert.Len(t, response.Items, 2)

		svc.AssertExpectations(t)
	})

	t.Run("list with filters", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc)

		svc.On("List", mock.Anything, mock.MatchedBy(func(f model.DonationFilter) bool {
			return f.Limit == 5 && f.Offset == 10 && f.Desc && f.From != nil
		})).Return([]*model.Donation{}, int64(0), nil)

		ctx := setupTestContext("GET", "/donations?limit=5&offset=10&order=desc&from=2026-01-01", nil)
		handler.ListDonations(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc)

		svc.On("List", mock.Anything, mock.Anything).
			Return(nil, int64(0), errors.New("database error"))

		ctx := setupTestContext("GET", "/donations", nil)
		handler.ListDonations(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})
}

func TestDonationHandler_ListDonationsWithPayments(t *testing.T) {
	t.Run("successful list with payment logs", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc)

		expected := []*model.DonationWithPayments{
			{
				ID:          1,
				PhoneNumber: "254712345678",
				Amount:      500,
				PaymentLogs: []*model.PaymentLog{
					{ID: 1, TransactionID: "SGR7OWJ2XA", Status: model.PaymentStatusSuccess},
				},
			},
		}

		svc.On("GetDonationsWithPayments", mock.Anything, mock.AnythingOfType("model.DonationFilter")).
			Return(expected, int64(1), nil)

		ctx := setupTestContext("GET", "/donations/payment-logs?phone_number=254712345678", nil)
		handler.ListDonationsWithPayments(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response listWithPaymentsResponse
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, int64(1), response.Total)
		require.Len(t, response.Items, 1)
		assert.Len(t, response.Items[0].PaymentLogs, 1)

		svc.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc)

		svc.On("GetDonationsWithPayments", mock.Anything, mock.Anything).
			Return(nil, int64(0), errors.New("query error"))

		ctx := setupTestContext("GET", "/donations/payment-logs", nil)
		handler.ListDonationsWithPayments(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})
}

func TestHelperFunctions(t *testing.T) {
	t.Run("writeJSON", func(t *testing.T) {
		ctx := setupTestContext("GET", "/", nil)
		data := map[string]string{"message": "test"}

		writeJSON(ctx, 200, data)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Header.Peek("Content-Type")), "application/json")

		var result map[string]string
		err := json.Unmarshal(ctx.Response.Body(), &result)
		require.NoError(t, err)
		assert.Equal(t, "test", result["message"])
	})

	t.Run("writeError", func(t *testing.T) {
		ctx := setupTestContext("GET", "/", nil)
		writeError(ctx, 404, "not found")

		assert.Equal(t, 404, ctx.Response.StatusCode())

		var result map[string]string
		err := json.Unmarshal(ctx.Response.Body(), &result)
		require.NoError(t, err)
		assert.Equal(t, "not found", result["error"])
	})

	t.Run("formValue prefers post body", func(t *testing.T) {
		form := url.Values{}
		form.Set("donor_name", "Body Donor")
		ctx := setupFormContext("/donations?donor_name=Query+Donor", form)

		assert.Equal(t, "Body Donor", formValue(ctx, "donor_name"))
	})

	t.Run("parseTime RFC3339", func(t *testing.T) {
		parsed, err := parseTime("2026-01-01T12:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, 2026, parsed.Year())
	})

	t.Run("parseTime date only", func(t *testing.T) {
		parsed, err := parseTime("2026-01-01")
		require.NoError(t, err)
		assert.Equal(t, 2026, parsed.Year())
		assert.Equal(t, time.Month(1), parsed.Month())
		assert.Equal(t, 1, parsed.Day())
	})

	t.Run("parseTime invalid", func(t *testing.T) {
		_, err := parseTime("invalid")
		assert.Error(t, err)
	})
}
