package processor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/champfund/donation-gateway/internal/model"
	"github.com/champfund/donation-gateway/internal/queue"
	"github.com/champfund/donation-gateway/internal/repository"
	"github.com/champfund/donation-gateway/pkg/logger"
	"github.com/champfund/donation-gateway/pkg/prom"
)

type DonationRepository interface {
	FindLatestPending(ctx context.Context, phoneNumber string, amount int64) (*model.Donation, error)
	SetTransactionID(ctx context.Context, id int64, transactionID string) error
}

// PaymentReconcileProcessor consumes successful payment logs off the queue
// and stamps the receipt number onto the matching pending donation. The
// callback carries no donation id, so matching is loose: newest pending
// donation with the same phone number and amount.
type PaymentReconcileProcessor struct {
	donationRepo DonationRepository
	idempotency  *IdempotencyService
}

func NewPaymentReconcileProcessor(donationRepo DonationRepository, idempotency *IdempotencyService) *PaymentReconcileProcessor {
	return &PaymentReconcileProcessor{
		donationRepo: donationRepo,
		idempotency:  idempotency,
	}
}

func (p *PaymentReconcileProcessor) GetType() string {
	return "payment-reconcile"
}

// Process one payment log with idempotency guarantees keyed on the receipt.
func (p *PaymentReconcileProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	start := time.Now()

	// Step 1: Parse payment log
	var payment model.PaymentLog
	err := json.Unmarshal(queueMessage.Data, &payment)
	if err != nil {
		logger.Error("Failed to unmarshal payment log", "error", err)
		return err // Return error to trigger DLQ move
	}

	// Only successful payments with a receipt can be reconciled; anything
	// else is ACKed so it never clogs the stream.
	if payment.Status != model.PaymentStatusSuccess || payment.TransactionID == "" {
		logger.Info("Skipping non-reconcilable payment",
			"payment_log_id", payment.ID,
			"status", payment.Status)
		return nil
	}

	transactionID := payment.TransactionID

	// Step 2: Acquire processing lock and check idempotency
	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, transactionID)
	if err != nil {
		if errors.Is(err, ErrAlreadyReconciled) {
			// Receipt already stamped - ACK to remove from queue
			logger.Info("Payment already reconciled, skipping", "transaction_id", transactionID)
			return nil
		}
		if errors.Is(err, ErrMaxRetriesExceeded) {
			// Max retries exceeded - ACK to move to DLQ, payment log row remains for manual review
			logger.Error("Max retries exceeded", "transaction_id", transactionID)
			return nil
		}
		if errors.Is(err, ErrLockAcquireFailed) {
			// Another consumer is processing - NACK to retry later
			logger.Info("Lock held by another consumer, will retry", "transaction_id", transactionID)
			return errors.New("lock held by another consumer")
		}
		// Unexpected error - NACK to retry
		logger.Error("Failed to acquire lock", "transaction_id", transactionID, "error", err)
		return err
	}

	// Ensure lock is released on exit (if not already marked success/failure)
	defer func() {
		if procCtx.lockAcquired {
			p.idempotency.ReleaseLock(ctx, procCtx)
		}
	}()

	logger.Info("Reconciling payment",
		"transaction_id", transactionID,
		"phone_number", payment.PhoneNumber,
		"amount", payment.Amount,
		"retry_count", procCtx.RetryCount,
		"is_retry", procCtx.IsRetry)

	// Step 3: Find the newest pending donation for this phone/amount pair
	donation, err := p.donationRepo.FindLatestPending(ctx, payment.PhoneNumber, int64(payment.Amount))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Nothing pending to stamp. The payment log row still exists,
			// so mark reconciled and ACK rather than spinning forever.
			logger.Warn("No pending donation for payment",
				"transaction_id", transactionID,
				"phone_number", payment.PhoneNumber,
				"amount", payment.Amount)
			if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
				logger.Error("Failed to mark success", "transaction_id", transactionID, "error", markErr)
			}
			return nil
		}
		logger.Error("Failed to look up pending donation", "transaction_id", transactionID, "error", err)
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("Failed to mark failure", "transaction_id", transactionID, "error", markErr)
		}
		return err // NACK to retry from queue
	}

	// Step 4: Stamp the receipt
	if err := p.donationRepo.SetTransactionID(ctx, donation.ID, transactionID); err != nil {
		logger.Error("Failed to stamp receipt on donation",
			"transaction_id", transactionID,
			"donation_id", donation.ID,
			"error", err)
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("Failed to mark failure", "transaction_id", transactionID, "error", markErr)
		}
		return err // NACK to retry
	}

	prom.AddPaymentReconcileDuration(time.Since(start).Seconds())

	logger.Info("Payment reconciled",
		"transaction_id", transactionID,
		"donation_id", donation.ID,
		"retry_count", procCtx.RetryCount)

	if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
		logger.Error("Failed to mark success", "transaction_id", transactionID, "error", markErr)
		// Continue - the receipt is stamped
	}

	return nil // ACK message
}
