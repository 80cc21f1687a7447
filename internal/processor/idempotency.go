package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/champfund/donation-gateway/pkg/logger"
	"github.com/champfund/donation-gateway/pkg/redis"
)

var (
	ErrAlreadyReconciled  = errors.New("payment already reconciled")
	ErrLockAcquireFailed  = errors.New("failed to acquire reconcile lock")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

type IdempotencyConfig struct {
	LockTTL time.Duration

	ProcessedTTL time.Duration

	MaxRetries int

	RetryKeyPrefix string

	LockKeyPrefix string

	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       24 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "reconcile:retry:",
		LockKeyPrefix:      "reconcile:lock:",
		ProcessedKeyPrefix: "reconcile:processed:",
	}
}

type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

// ProcessingContext tracks one reconcile attempt, keyed by the gateway
// receipt number. Redelivered callbacks share the same key, which is what
// keeps a receipt from being stamped twice.
type ProcessingContext struct {
	TransactionID string
	RetryCount    int
	IsRetry       bool
	lockAcquired  bool
	service       *IdempotencyService
}

func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, transactionID string) (*ProcessingContext, error) {
	// Step 1: Check if already reconciled (long-term marker)
	processedKey := s.config.ProcessedKeyPrefix + transactionID
	exists, err := s.redis.Exist(processedKey)
	if err != nil {
		logger.Warn("Failed to check reconciled status", "transaction_id", transactionID, "error", err)
		// Continue even if check fails - better to risk duplicate than block processing
	} else if exists > 0 {
		logger.Info("Payment already reconciled, skipping", "transaction_id", transactionID)
		return nil, ErrAlreadyReconciled
	}

	// Step 2: Get current retry count
	retryKey := s.config.RetryKeyPrefix + transactionID
	retryCountBytes, err := s.redis.Get(retryKey)
	retryCount := 0
	if err == nil && len(retryCountBytes) > 0 {
		fmt.Sscanf(string(retryCountBytes), "%d", &retryCount)
	}

	// Step 3: Check if max retries exceeded
	if retryCount >= s.config.MaxRetries {
		logger.Error("Max retries exceeded for payment", "transaction_id", transactionID, "retry_count", retryCount)
		return nil, fmt.Errorf("%w: transaction_id=%s, retries=%d", ErrMaxRetriesExceeded, transactionID, retryCount)
	}

	// Step 4: Acquire short-term processing lock (prevents concurrent processing)
	lockKey := s.config.LockKeyPrefix + transactionID
	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))

	acquired, err := s.redis.SetNX(lockKey, lockValue, s.config.LockTTL)
	if err != nil {
		logger.Error("Failed to acquire lock", "transaction_id", transactionID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}

	if !acquired {
		logger.Info("Lock already held by another consumer", "transaction_id", transactionID)
		return nil, ErrLockAcquireFailed
	}

	logger.Info("Reconcile lock acquired",
		"transaction_id", transactionID,
		"retry_count", retryCount,
		"lock_ttl", s.config.LockTTL)

	return &ProcessingContext{
		TransactionID: transactionID,
		RetryCount:    retryCount,
		IsRetry:       retryCount > 0,
		lockAcquired:  true,
		service:       s,
	}, nil
}

func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext) error {
	transactionID := pc.TransactionID

	// Step 1: Set long-term reconciled marker (24 hours)
	processedKey := s.config.ProcessedKeyPrefix + transactionID
	err := s.redis.Set(processedKey, []byte("1"), s.config.ProcessedTTL)
	if err != nil {
		logger.Error("Failed to mark payment as reconciled", "transaction_id", transactionID, "error", err)
		return fmt.Errorf("failed to mark as reconciled: %w", err)
	}

	// Step 2: Clean up lock and retry counter
	s.cleanup(ctx, pc)

	logger.Info("Payment marked as reconciled",
		"transaction_id", transactionID,
		"retry_count", pc.RetryCount)

	return nil
}

func (s *IdempotencyService) MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error {
	transactionID := pc.TransactionID

	// Step 1: Increment retry counter
	retryKey := s.config.RetryKeyPrefix + transactionID
	newRetryCount := pc.RetryCount + 1
	retryValue := []byte(fmt.Sprintf("%d", newRetryCount))

	// Keep retry counter for longer to track across retries
	err := s.redis.Set(retryKey, retryValue, s.config.ProcessedTTL)
	if err != nil {
		logger.Error("Failed to increment retry counter", "transaction_id", transactionID, "error", err)
	}

	// Step 2: Remove lock to allow retry
	lockKey := s.config.LockKeyPrefix + transactionID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to remove lock", "transaction_id", transactionID, "error", err)
	}

	logger.Warn("Payment reconcile failed, will retry",
		"transaction_id", transactionID,
		"retry_count", newRetryCount,
		"max_retries", s.config.MaxRetries,
		"reason", reason)

	return nil
}

func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.lockAcquired {
		return nil
	}

	lockKey := s.config.LockKeyPrefix + pc.TransactionID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to release lock", "transaction_id", pc.TransactionID, "error", err)
		return err
	}

	pc.lockAcquired = false
	logger.Debug("Reconcile lock released", "transaction_id", pc.TransactionID)
	return nil
}

func (s *IdempotencyService) cleanup(ctx context.Context, pc *ProcessingContext) {
	transactionID := pc.TransactionID

	// Remove lock
	lockKey := s.config.LockKeyPrefix + transactionID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to cleanup lock", "transaction_id", transactionID, "error", err)
	}

	// Remove retry counter (no longer needed)
	retryKey := s.config.RetryKeyPrefix + transactionID
	if err := s.redis.Del(retryKey); err != nil {
		logger.Warn("Failed to cleanup retry counter", "transaction_id", transactionID, "error", err)
	}

	pc.lockAcquired = false
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, transactionID string) (int, error) {
	retryKey := s.config.RetryKeyPrefix + transactionID
	retryCountBytes, err := s.redis.Get(retryKey)
	if err != nil {
		if err == redis.NilError {
			return 0, nil
		}
		return 0, err
	}

	retryCount := 0
	fmt.Sscanf(string(retryCountBytes), "%d", &retryCount)
	return retryCount, nil
}

func (s *IdempotencyService) IsReconciled(ctx context.Context, transactionID string) (bool, error) {
	processedKey := s.config.ProcessedKeyPrefix + transactionID
	exists, err := s.redis.Exist(processedKey)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
