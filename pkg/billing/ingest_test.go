package billing

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
	"tightship_backend/pkg/dunning"
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

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"active", model.StatusActive},
		{"trialing", model.StatusTrialing},
		{"past_due", model.StatusPastDue},
		{"canceled", model.StatusCancelled},
		{"unpaid", model.StatusUnpaid},
		{"incomplete", model.StatusUnpaid},
		{"incomplete_expired", model.StatusUnpaid},
		{"paused", model.StatusUnpaid},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			assert.Equal(t, tt.want, mapProviderStatus(tt.provider))
		})
	}
}

func TestShouldSkipSync(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("cancelled subscription is never resurrected", func(t *testing.T) {
		sub := model.Subscription{Status: model.StatusCancelled}
		skip, reason := shouldSkipSync(&sub, SubscriptionSynced{ProviderStatus: "active", PeriodStart: now})
		assert.True(t, skip)
		assert.NotEmpty(t, reason)
	})

	t.Run("older period than stored is stale", func(t *testing.T) {
		stored := now
		sub := model.Subscription{Status: model.StatusActive, CurrentPeriodStart: &stored}
		skip, _ := shouldSkipSync(&sub, SubscriptionSynced{PeriodStart: now.AddDate(0, -1, 0)})
		assert.True(t, skip)
	})

	t.Run("same period applies", func(t *testing.T) {
		stored := now
		sub := model.Subscription{Status: model.StatusActive, CurrentPeriodStart: &stored}
		skip, _ := shouldSkipSync(&sub, SubscriptionSynced{PeriodStart: now})
		assert.False(t, skip)
	})

	t.Run("no stored period applies", func(t *testing.T) {
		sub := model.Subscription{Status: model.StatusTrialing}
		skip, _ := shouldSkipSync(&sub, SubscriptionSynced{PeriodStart: now})
		assert.False(t, skip)
	})
}

func TestApplySubscriptionDeleted(t *testing.T) {
	t.Run("marks the subscription cancelled", func(t *testing.T) {
		db, mock := newMockDB(t)
		ingestor := NewIngestor(db, nil, nil, zerolog.Nop())

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "subscriptions"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := ingestor.Apply(context.Background(), SubscriptionDeleted{ID: "evt_1", SubscriptionID: "sub_123"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown subscription is not an error", func(t *testing.T) {
		db, mock := newMockDB(t)
		ingestor := NewIngestor(db, nil, nil, zerolog.Nop())

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "subscriptions"`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := ingestor.Apply(context.Background(), SubscriptionDeleted{ID: "evt_2", SubscriptionID: "sub_gone"})
		assert.NoError(t, err)
	})
}

func TestApplySubscriptionSyncedUpdatesRow(t *testing.T) {
	db, mock := newMockDB(t)
	ingestor := NewIngestor(db, nil, nil, zerolog.Nop())

	mock.ExpectQuery(`SELECT (.+) FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "plan_id", "status"}).
			AddRow(5, 1, 1, model.StatusTrialing))
	mock.ExpectQuery(`SELECT (.+) FROM "plans"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tier"}).AddRow(3, "PROFESSIONAL"))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscriptions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := ingestor.Apply(context.Background(), SubscriptionSynced{
		ID:             "evt_5",
		SubscriptionID: "sub_123",
		CustomerID:     "cus_123",
		PriceID:        "price_pro_m",
		ItemID:         "si_123",
		ProviderStatus: "active",
		PeriodStart:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyInvoicePaidAfterFailuresClearsDunningState(t *testing.T) {
	db, mock := newMockDB(t)
	manager := dunning.NewManager(db, dunning.Policy{
		GracePeriodDays:      14,
		CriticalFailureCount: 2,
		GraceWarningDays:     3,
	}, nil, zerolog.Nop())
	ingestor := NewIngestor(db, manager, nil, zerolog.Nop())

	mock.ExpectQuery(`SELECT (.+) FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "plan_id", "status", "failed_payment_count"}).
			AddRow(5, 1, 1, model.StatusPastDue, 2))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscriptions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := ingestor.Apply(context.Background(), InvoicePaid{ID: "evt_6", SubscriptionID: "sub_123", AttemptCount: 2})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyIgnoredEventIsNoOp(t *testing.T) {
	ingestor := NewIngestor(nil, nil, nil, zerolog.Nop())

	err := ingestor.Apply(context.Background(), Ignored{ID: "evt_3", Type: "payment_method.attached"})
	assert.NoError(t, err)
}

func TestApplyInvoicePaidFirstAttemptIsNoOp(t *testing.T) {
	ingestor := NewIngestor(nil, nil, nil, zerolog.Nop())

	err := ingestor.Apply(context.Background(), InvoicePaid{ID: "evt_4", SubscriptionID: "sub_123", AttemptCount: 1})
	assert.NoError(t, err)
}
