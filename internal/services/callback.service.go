package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/champfund/donation-gateway/internal/model"
	"github.com/champfund/donation-gateway/internal/queue"
	"github.com/champfund/donation-gateway/pkg/logger"
)

var ErrMalformedCallback = errors.New("malformed callback payload")

type PaymentLogRepository interface {
	Create(ctx context.Context, pl *model.PaymentLog) (*model.PaymentLog, error)
	List(ctx context.Context, f model.PaymentLogFilter) ([]*model.PaymentLog, int64, error)
}

type CallbackService struct {
	paymentLogRepo PaymentLogRepository
	reconcileQueue *queue.Queue
}

func NewCallbackService(paymentLogRepo PaymentLogRepository, reconcileQueue *queue.Queue) *CallbackService {
	return &CallbackService{
		paymentLogRepo: paymentLogRepo,
		reconcileQueue: reconcileQueue,
	}
}

// Process handles one callback delivery from the payment gateway. Every
// delivery is logged as its own row, success or failure, and the returned
// ack tells the gateway whether to redeliver. The gateway retries anything
// but ResultCode 0, so persistence failures ack with 1.
func (s *CallbackService) Process(ctx context.Context, raw []byte) *model.CallbackAck {
	cb, err := parseCallback(raw)
	if err != nil {
		logger.Error("Rejecting malformed callback", "error", err, "body_size", len(raw))
		return &model.CallbackAck{ResultCode: 1, ResultDesc: "Error processing callback"}
	}

	meta := cb.CallbackMetadata.Flatten()

	status := model.PaymentStatusFailed
	if cb.Succeeded() {
		status = model.PaymentStatusSuccess
	}

	pl := &model.PaymentLog{
		TransactionID:    model.MetaString(meta, model.MetaReceiptNumber),
		PhoneNumber:      model.MetaString(meta, model.MetaPhoneNumber),
		Amount:           model.MetaFloat(meta, model.MetaAmount),
		TransactionType:  model.TransactionTypePaybill,
		AccountReference: model.MetaString(meta, model.MetaAccountReference),
		Description:      cb.ResultDesc,
		RawCallback:      stableJSON(raw),
		Status:           status,
		DateReceived:     time.Now(),
	}

	created, err := s.paymentLogRepo.Create(ctx, pl)
	if err != nil {
		logger.Error("Failed to persist payment log",
			"transaction_id", pl.TransactionID,
			"phone_number", pl.PhoneNumber,
			"error", err)
		return &model.CallbackAck{ResultCode: 1, ResultDesc: "Error processing callback"}
	}

	logger.Info("Payment callback logged",
		"payment_log_id", created.ID,
		"transaction_id", created.TransactionID,
		"status", created.Status)

	// Best effort: reconciliation catches up from the table if the queue
	// is down, so a publish failure never turns into a redelivery.
	if s.reconcileQueue != nil && status == model.PaymentStatusSuccess {
		if _, err := s.reconcileQueue.PublishJSON(ctx, created, nil); err != nil {
			logger.Warn("Failed to enqueue payment for reconciliation",
				"payment_log_id", created.ID,
				"error", err)
		}
	}

	return &model.CallbackAck{ResultCode: 0, ResultDesc: "Callback received successfully"}
}

func parseCallback(raw []byte) (*model.STKCallback, error) {
	var env model.CallbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformedCallback
	}
	if env.Body.STKCallback == nil {
		return nil, ErrMalformedCallback
	}
	return env.Body.STKCallback, nil
}

// stableJSON re-indents the delivery for the audit column without touching
// field order or unknown fields.
func stableJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
