package helpers

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/champfund/donation-gateway/internal/model"
	"github.com/champfund/donation-gateway/internal/repository"
	"github.com/champfund/donation-gateway/pkg/pg"
	"github.com/champfund/donation-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.DonationEntity{},
		&repository.PaymentLogEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	adapter, err := redis.NewRedisAdapter("test-"+t.Name(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestDonation(t *testing.T, db *pg.DB, donorName, phoneNumber string, amount int64) *repository.DonationEntity {
	ctx := context.Background()
	donation := &repository.DonationEntity{
		DonorName:   donorName,
		PhoneNumber: phoneNumber,
		Amount:      amount,
		CreatedAt:   time.Now(),
	}
	err := db.Write(ctx).Create(donation).Error
	require.NoError(t, err)
	return donation
}

func CreateTestPaymentLog(t *testing.T, db *pg.DB, transactionID, phoneNumber string, amount float64, status model.PaymentStatus) *repository.PaymentLogEntity {
	ctx := context.Background()
	log := &repository.PaymentLogEntity{
		TransactionID:   transactionID,
		PhoneNumber:     phoneNumber,
		Amount:          amount,
		TransactionType: string(model.TransactionTypePaybill),
		Status:          string(status),
		DateReceived:    time.Now(),
	}
	err := db.Write(ctx).Create(log).Error
	require.NoError(t, err)
	return log
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
