package dunning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tightship_backend/internal/model"
)

var testPolicy = Policy{
	GracePeriodDays:      14,
	CriticalFailureCount: 2,
	GraceWarningDays:     3,
}

func deadline(now time.Time, days int) *time.Time {
	d := now.AddDate(0, 0, days)
	return &d
}

func TestLevelFor(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		sub  model.Subscription
		want Level
	}{
		{
			name: "healthy active subscription",
			sub:  model.Subscription{Status: model.StatusActive},
			want: LevelNone,
		},
		{
			name: "single failure with distant deadline",
			sub: model.Subscription{
				Status:             model.StatusPastDue,
				FailedPaymentCount: 1,
				GraceDeadline:      deadline(now, 10),
			},
			want: LevelWarning,
		},
		{
			name: "failure count at critical threshold",
			sub: model.Subscription{
				Status:             model.StatusPastDue,
				FailedPaymentCount: 2,
				GraceDeadline:      deadline(now, 10),
			},
			want: LevelCritical,
		},
		{
			name: "single failure but deadline inside warning window",
			sub: model.Subscription{
				Status:             model.StatusPastDue,
				FailedPaymentCount: 1,
				GraceDeadline:      deadline(now, 2),
			},
			want: LevelCritical,
		},
		{
			name: "deadline elapsed",
			sub: model.Subscription{
				Status:             model.StatusPastDue,
				FailedPaymentCount: 1,
				GraceDeadline:      deadline(now, -1),
			},
			want: LevelSuspended,
		},
		{
			name: "deadline exactly now counts as elapsed",
			sub: model.Subscription{
				Status:             model.StatusPastDue,
				FailedPaymentCount: 3,
				GraceDeadline:      &now,
			},
			want: LevelSuspended,
		},
		{
			name: "unpaid status always suspended",
			sub:  model.Subscription{Status: model.StatusUnpaid},
			want: LevelSuspended,
		},
		{
			name: "recovered subscription resets to none",
			sub: model.Subscription{
				Status:             model.StatusActive,
				FailedPaymentCount: 0,
				GraceDeadline:      nil,
			},
			want: LevelNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, testPolicy.LevelFor(&tt.sub, now))
		})
	}
}

func TestWarningsFor(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("healthy yields no warnings", func(t *testing.T) {
		sub := model.Subscription{Status: model.StatusActive}
		assert.Empty(t, testPolicy.WarningsFor(&sub, now))
	})

	t.Run("warning level includes the deadline date", func(t *testing.T) {
		sub := model.Subscription{
			Status:             model.StatusPastDue,
			FailedPaymentCount: 1,
			GraceDeadline:      deadline(now, 10),
		}
		warnings := testPolicy.WarningsFor(&sub, now)
		assert.Len(t, warnings, 1)
		assert.Equal(t, "warning", warnings[0].Type)
		assert.Contains(t, warnings[0].Message, "20 March 2026")
	})

	t.Run("suspended level tells the user to update payment", func(t *testing.T) {
		sub := model.Subscription{Status: model.StatusUnpaid}
		warnings := testPolicy.WarningsFor(&sub, now)
		assert.Len(t, warnings, 1)
		assert.Equal(t, "critical", warnings[0].Type)
		assert.Equal(t, "Account suspended", warnings[0].Title)
	})
}
