package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/champfund/donation-gateway/internal/model"
	"github.com/champfund/donation-gateway/internal/queue"
	"github.com/champfund/donation-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPaymentLogRepository struct {
	mock.Mock
}

func (m *MockPaymentLogRepository) Create(ctx context.Context, pl *model.PaymentLog) (*model.PaymentLog, error) {
	args := m.Called(ctx, pl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentLog), args.Error(1)
}

func (m *MockPaymentLogRepository) List(ctx context.Context, f model.PaymentLogFilter) ([]*model.PaymentLog, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.PaymentLog), args.Get(1).(int64), args.Error(2)
}

const successCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191120469945",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 500.0},
          {"Name": "MpesaReceiptNumber", "Value": "SGR7OWJ2XA"},
          {"Name": "TransactionDate", "Value": 20260828143022},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      }
    }
  }
}`

const failedCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-2",
      "CheckoutRequestID": "ws_CO_191220191120469946",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`

func TestCallbackService_Process_Success(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentLogRepository)
	service := NewCallbackService(repo, nil)

	repo.On("Create", ctx, mock.MatchedBy(func(pl *model.PaymentLog) bool {
		return pl.TransactionID == "SGR7OWJ2XA" &&
			pl.PhoneNumber == "254712345678" &&
			pl.Amount == 500 &&
			pl.Status == model.PaymentStatusSuccess
	})).Return(&model.PaymentLog{ID: 1, TransactionID: "SGR7OWJ2XA", Status: model.PaymentStatusSuccess}, nil)

	ack := service.Process(ctx, []byte(successCallback))
	assert.Equal(t, 0, ack.ResultCode)
	assert.Equal(t, "Callback received successfully", ack.ResultDesc)

	repo.AssertExpectations(t)
}

func TestCallbackService_Process_Failed(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentLogRepository)
	service := NewCallbackService(repo, nil)

	repo.On("Create", ctx, mock.MatchedBy(func(pl *model.PaymentLog) bool {
		return pl.TransactionID == "" &&
			pl.Status == model.PaymentStatusFailed &&
			pl.Description == "Request cancelled by user"
	})).Return(&model.PaymentLog{ID: 2, Status: model.PaymentStatusFailed}, nil)

	ack := service.Process(ctx, []byte(failedCallback))
	assert.Equal(t, 0, ack.ResultCode)

	repo.AssertExpectations(t)
}

func TestCallbackService_Process_MissingMetadata(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentLogRepository)
	service := NewCallbackService(repo, nil)

	// success result without a CallbackMetadata block: persisted with
	// empty metadata-derived fields, still acked positively
	payload := `{"Body": {"stkCallback": {"MerchantRequestID": "x", "CheckoutRequestID": "y", "ResultCode": 0, "ResultDesc": "ok"}}}`

	repo.On("Create", ctx, mock.MatchedBy(func(pl *model.PaymentLog) bool {
		return pl.TransactionID == "" &&
			pl.PhoneNumber == "" &&
			pl.Amount == 0 &&
			pl.Status == model.PaymentStatusSuccess
	})).Return(&model.PaymentLog{ID: 4, Status: model.PaymentStatusSuccess}, nil)

	ack := service.Process(ctx, []byte(payload))
	assert.Equal(t, 0, ack.ResultCode)
	assert.Equal(t, "Callback received successfully", ack.ResultDesc)

	repo.AssertExpectations(t)
}

func TestCallbackService_Process_MissingResultCode(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentLogRepository)
	service := NewCallbackService(repo, nil)

	// no ResultCode at all must not be treated as success
	payload := `{"Body": {"stkCallback": {"MerchantRequestID": "x", "CheckoutRequestID": "y", "ResultDesc": "odd"}}}`

	repo.On("Create", ctx, mock.MatchedBy(func(pl *model.PaymentLog) bool {
		return pl.Status == model.PaymentStatusFailed
	})).Return(&model.PaymentLog{ID: 3, Status: model.PaymentStatusFailed}, nil)

	ack := service.Process(ctx, []byte(payload))
	assert.Equal(t, 0, ack.ResultCode)

	repo.AssertExpectations(t)
}

func TestCallbackService_Process_Malformed(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		body string
	}{
		{"not json", "this is not json"},
		{"empty body", ""},
		{"missing stkCallback", `{"Body": {}}`},
		{"empty object", `{}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(MockPaymentLogRepository)
			service := NewCallbackService(repo, nil)

			ack := service.Process(ctx, []byte(tc.body))
			assert.Equal(t, 1, ack.ResultCode)
			assert.Equal(t, "Error processing callback", ack.ResultDesc)

			repo.AssertNotCalled(t, "Create")
		})
	}
}

func TestCallbackService_Process_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentLogRepository)
	service := NewCallbackService(repo, nil)

	repo.On("Create", ctx, mock.AnythingOfType("*model.PaymentLog")).Return(nil, assert.AnError)

	ack := service.Process(ctx, []byte(successCallback))
	assert.Equal(t, 1, ack.ResultCode)

	repo.AssertExpectations(t)
}

func TestCallbackService_Process_RawCallbackPreserved(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPaymentLogRepository)
	service := NewCallbackService(repo, nil)

	// unknown fields survive the round trip into the audit column
	payload := `{"Body":{"stkCallback":{"ResultCode":0,"ResultDesc":"ok","UnknownField":"kept","CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"ABC123"}]}}}}`

	var captured *model.PaymentLog
	repo.On("Create", ctx, mock.AnythingOfType("*model.PaymentLog")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*model.PaymentLog)
		}).
		Return(&model.PaymentLog{ID: 4}, nil)

	service.Process(ctx, []byte(payload))

	require.NotNil(t, captured)
	assert.Contains(t, captured.RawCallback, "UnknownField")
	assert.Contains(t, captured.RawCallback, "kept")

	var roundTrip map[string]any
	require.NoError(t, json.Unmarshal([]byte(captured.RawCallback), &roundTrip))
}

func TestCallbackService_Process_EnqueuesSuccess(t *testing.T) {
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	q, err := queue.NewQueue(adapter, queue.QueueConfig{
		Name:          "test:payments:reconcile",
		ConsumerGroup: "test-group",
		ConsumerName:  "test-consumer",
		MaxLen:        100,
		PollInterval:  100 * time.Millisecond,
	})
	require.NoError(t, err)

	repo := new(MockPaymentLogRepository)
	service := NewCallbackService(repo, q)

	repo.On("Create", ctx, mock.AnythingOfType("*model.PaymentLog")).
		Return(&model.PaymentLog{ID: 5, TransactionID: "SGR7OWJ2XA", Status: model.PaymentStatusSuccess}, nil)

	ack := service.Process(ctx, []byte(successCallback))
	assert.Equal(t, 0, ack.ResultCode)

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalMessages, int64(1))
}

func TestCallbackService_Process_FailedNotEnqueued(t *testing.T) {
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	q, err := queue.NewQueue(adapter, queue.QueueConfig{
		Name:          "test:payments:reconcile:failed",
		ConsumerGroup: "test-group",
		ConsumerName:  "test-consumer",
		MaxLen:        100,
		PollInterval:  100 * time.Millisecond,
	})
	require.NoError(t, err)

	repo := new(MockPaymentLogRepository)
	service := NewCallbackService(repo, q)

	repo.On("Create", ctx, mock.AnythingOfType("*model.PaymentLog")).
		Return(&model.PaymentLog{ID: 6, Status: model.PaymentStatusFailed}, nil)

	ack := service.Process(ctx, []byte(failedCallback))
	assert.Equal(t, 0, ack.ResultCode)

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalMessages)
}
