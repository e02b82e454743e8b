package usage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func expectPlanLimits(mock sqlmock.Sqlmock, maxRestaurants, maxProducts, maxAPICalls int) {
	mock.ExpectQuery(`SELECT (.+) FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "plan_id", "status"}).
			AddRow(1, 1, 2, "ACTIVE"))
	mock.ExpectQuery(`SELECT (.+) FROM "plans"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tier", "name", "max_restaurants", "max_products", "max_api_calls"}).
			AddRow(2, "FREE", "Free", maxRestaurants, maxProducts, maxAPICalls))
}

func TestCheckAndReserveRejectsAtLimit(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewService(db, nil, "https://app.example.com/upgrade")

	expectPlanLimits(mock, 1, 50, 1000)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(50))
	mock.ExpectRollback()

	created := false
	err := svc.CheckAndReserve(context.Background(), 1, ResourceProducts, func(tx *gorm.DB) error {
		created = true
		return nil
	})

	var limitErr *LimitExceededError
	require.True(t, errors.As(err, &limitErr))
	assert.False(t, created)
	assert.Equal(t, "LIMIT_EXCEEDED", limitErr.Code)
	assert.Equal(t, ResourceProducts, limitErr.Resource)
	assert.Equal(t, int64(50), limitErr.CurrentUsage)
	assert.Equal(t, 50, limitErr.Limit)
	assert.Equal(t, "https://app.example.com/upgrade", limitErr.UpgradeURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAndReserveAllowsBelowLimit(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewService(db, nil, "")

	expectPlanLimits(mock, 1, 50, 1000)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(49))
	mock.ExpectCommit()

	created := false
	err := svc.CheckAndReserve(context.Background(), 1, ResourceProducts, func(tx *gorm.DB) error {
		created = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAndReserveUnlimitedPlanNeverRejects(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewService(db, nil, "")

	expectPlanLimits(mock, -1, -1, -1)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(100000))
	mock.ExpectCommit()

	err := svc.CheckAndReserve(context.Background(), 1, ResourceProducts, func(tx *gorm.DB) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestCheckAndReserveMissingSubscriptionUsesFreeLimits(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewService(db, nil, "")

	mock.ExpectQuery(`SELECT (.+) FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "restaurants"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := svc.CheckAndReserve(context.Background(), 1, ResourceRestaurants, func(tx *gorm.DB) error {
		return nil
	})

	var limitErr *LimitExceededError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 1, limitErr.Limit)
}

func TestCheckSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewService(db, nil, "")

	expectPlanLimits(mock, 1, 50, 1000)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))

	snap, err := svc.Check(context.Background(), 1, ResourceProducts)
	require.NoError(t, err)
	assert.Equal(t, int64(10), snap.Current)
	assert.Equal(t, 50, snap.Limit)
	assert.Equal(t, int64(40), snap.Remaining)
	assert.False(t, snap.IsUnlimited)
}

func TestCheckUnlimitedSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewService(db, nil, "")

	expectPlanLimits(mock, -1, -1, -1)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9999))

	snap, err := svc.Check(context.Background(), 1, ResourceProducts)
	require.NoError(t, err)
	assert.True(t, snap.IsUnlimited)
	assert.Equal(t, int64(-1), snap.Remaining)
}

func TestExceededErrorCarriesUpgradeURL(t *testing.T) {
	svc := NewService(nil, nil, "https://app.example.com/upgrade")

	limitErr := svc.ExceededError(Snapshot{
		Resource: ResourceAPICalls,
		Current:  1000,
		Limit:    1000,
	})

	assert.Equal(t, "LIMIT_EXCEEDED", limitErr.Code)
	assert.Equal(t, ResourceAPICalls, limitErr.Resource)
	assert.Equal(t, int64(1000), limitErr.CurrentUsage)
	assert.Equal(t, 1000, limitErr.Limit)
	assert.Equal(t, "https://app.example.com/upgrade", limitErr.UpgradeURL)
	assert.NotEmpty(t, limitErr.Message)
}

func TestRecordAPICallIncrementsMonthlyCounter(t *testing.T) {
	rdb := newTestRedis(t)
	svc := NewService(nil, rdb, "")
	ctx := context.Background()

	n, err := svc.RecordAPICall(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.RecordAPICall(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Another organization gets its own counter.
	n, err = svc.RecordAPICall(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCheckAPICallsReadsRedisCounter(t *testing.T) {
	db, mock := newMockDB(t)
	rdb := newTestRedis(t)
	svc := NewService(db, rdb, "")
	ctx := context.Background()

	key := fmt.Sprintf("usage:apicalls:7:%s", time.Now().Format("2006-01"))
	require.NoError(t, rdb.Set(ctx, key, 900, 0).Err())

	expectPlanLimits(mock, 1, 50, 1000)

	snap, err := svc.Check(ctx, 7, ResourceAPICalls)
	require.NoError(t, err)
	assert.Equal(t, int64(900), snap.Current)
	assert.Equal(t, int64(100), snap.Remaining)
}

func TestCheckAPICallsEmptyWindowIsZero(t *testing.T) {
	db, mock := newMockDB(t)
	rdb := newTestRedis(t)
	svc := NewService(db, rdb, "")

	expectPlanLimits(mock, 1, 50, 1000)

	snap, err := svc.Check(context.Background(), 7, ResourceAPICalls)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Current)
	assert.Equal(t, int64(1000), snap.Remaining)
}
