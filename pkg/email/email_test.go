package email

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceRequiresAPIKey(t *testing.T) {
	_, err := NewService("", "noreply@example.com", zerolog.Nop())
	assert.Error(t, err)
}

func TestEmbeddedTemplatesRender(t *testing.T) {
	templates, err := loadTemplates()
	require.NoError(t, err)

	deadline := time.Date(2026, 3, 24, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		template string
		data     interface{}
	}{
		{"welcome.html", WelcomeEmailData{OrganizationName: "The Crown"}},
		{"subscription_started.html", SubscriptionStartedData{
			OrganizationName: "The Crown", PlanName: "Professional", Price: 79, PeriodEnd: deadline,
		}},
		{"subscription_cancelled.html", SubscriptionCancelledData{
			OrganizationName: "The Crown", PlanName: "Professional", ActiveUntil: deadline,
		}},
		{"payment_failed.html", PaymentFailedData{
			OrganizationName: "The Crown", AttemptCount: 2, AmountDue: 79, Currency: "gbp", GraceDeadline: deadline,
		}},
		{"payment_recovered.html", PaymentRecoveredData{OrganizationName: "The Crown"}},
		{"suspended.html", SuspendedData{OrganizationName: "The Crown"}},
		{"grace_warning.html", GraceWarningData{OrganizationName: "The Crown", DaysLeft: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			var body bytes.Buffer
			err := templates.ExecuteTemplate(&body, tt.template, tt.data)
			require.NoError(t, err)
			assert.Contains(t, body.String(), "The Crown")
		})
	}
}
