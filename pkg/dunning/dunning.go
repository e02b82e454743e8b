package dunning

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
)

// Policy holds the deployment-tunable dunning knobs.
type Policy struct {
	GracePeriodDays      int
	CriticalFailureCount int
	GraceWarningDays     int
}

// Level is the derived severity of a subscription's payment trouble.
type Level string

const (
	LevelNone      Level = "none"
	LevelWarning   Level = "warning"
	LevelCritical  Level = "critical"
	LevelSuspended Level = "suspended"
)

// Warning is a UI-facing banner entry.
type Warning struct {
	Type    string `json:"type"` // "warning" or "critical"
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Mailer is the slice of the email service dunning needs. Nil disables mail.
type Mailer interface {
	SendPaymentFailedEmail(to, organizationName string, attemptCount int, amountDue float64, currency string, graceDeadline time.Time) error
	SendPaymentRecoveredEmail(to, organizationName string) error
	SendSubscriptionSuspendedEmail(to, organizationName string) error
	SendGraceWarningEmail(to, organizationName string, daysLeft int) error
}

type Manager struct {
	db     *gorm.DB
	policy Policy
	mailer Mailer
	log    zerolog.Logger
}

func NewManager(db *gorm.DB, policy Policy, mailer Mailer, log zerolog.Logger) *Manager {
	return &Manager{db: db, policy: policy, mailer: mailer, log: log}
}

// LevelFor derives the warning level from persisted dunning state. Pure so
// the transitions are testable without a database.
func (p Policy) LevelFor(sub *model.Subscription, now time.Time) Level {
	if sub.Status == model.StatusUnpaid {
		return LevelSuspended
	}
	if sub.FailedPaymentCount == 0 {
		return LevelNone
	}
	if sub.GraceDeadline != nil && !now.Before(*sub.GraceDeadline) {
		return LevelSuspended
	}
	if sub.FailedPaymentCount >= p.CriticalFailureCount {
		return LevelCritical
	}
	if sub.GraceDeadline != nil && now.AddDate(0, 0, p.GraceWarningDays).After(*sub.GraceDeadline) {
		return LevelCritical
	}
	return LevelWarning
}

// WarningsFor renders the banner list for a level. Empty for healthy.
func (p Policy) WarningsFor(sub *model.Subscription, now time.Time) []Warning {
	switch p.LevelFor(sub, now) {
	case LevelWarning:
		return []Warning{{
			Type:    "warning",
			Title:   "Payment failed",
			Message: fmt.Sprintf("Your last payment didn't go through. We'll retry automatically%s.", deadlineSuffix(sub)),
		}}
	case LevelCritical:
		return []Warning{{
			Type:    "critical",
			Title:   "Payment overdue",
			Message: fmt.Sprintf("Repeated payment failures%s. Update your payment method to avoid suspension.", deadlineSuffix(sub)),
		}}
	case LevelSuspended:
		return []Warning{{
			Type:    "critical",
			Title:   "Account suspended",
			Message: "The grace period has elapsed without payment. Update your payment method to restore access.",
		}}
	}
	return nil
}

func deadlineSuffix(sub *model.Subscription) string {
	if sub.GraceDeadline == nil {
		return ""
	}
	return fmt.Sprintf("; service continues until %s", sub.GraceDeadline.Format("2 January 2006"))
}

// Warnings returns the ordered banner list for an organization. A healthy or
// missing subscription yields an empty list, never an error.
func (m *Manager) Warnings(ctx context.Context, organizationID uint) ([]Warning, error) {
	var sub model.Subscription
	err := m.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return []Warning{}, nil
		}
		return nil, err
	}

	warnings := m.policy.WarningsFor(&sub, time.Now())
	if warnings == nil {
		warnings = []Warning{}
	}
	return warnings, nil
}

// HandlePaymentFailed records a provider payment failure: bump the failure
// count, open the grace window if it isn't already open, and move ACTIVE
// subscriptions to PAST_DUE.
func (m *Manager) HandlePaymentFailed(ctx context.Context, stripeSubscriptionID string, attemptCount int64, amountDue int64, currency string) error {
	var sub model.Subscription
	if err := m.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error; err != nil {
		return fmt.Errorf("payment failed for unknown subscription %s: %w", stripeSubscriptionID, err)
	}

	now := time.Now()
	if int(attemptCount) > sub.FailedPaymentCount {
		sub.FailedPaymentCount = int(attemptCount)
	} else {
		sub.FailedPaymentCount++
	}
	sub.LastPaymentFailedAt = &now
	if sub.GraceDeadline == nil {
		deadline := now.AddDate(0, 0, m.policy.GracePeriodDays)
		sub.GraceDeadline = &deadline
	}
	if sub.Status == model.StatusActive || sub.Status == model.StatusTrialing {
		sub.Status = model.StatusPastDue
	}

	if err := m.db.WithContext(ctx).Save(&sub).Error; err != nil {
		return err
	}

	m.log.Warn().
		Uint("organization_id", sub.OrganizationID).
		Int("failed_payments", sub.FailedPaymentCount).
		Time("grace_deadline", *sub.GraceDeadline).
		Msg("payment failed, subscription past due")

	if m.mailer != nil {
		email, name, err := m.ownerContact(ctx, sub.OrganizationID)
		if err == nil {
			if err := m.mailer.SendPaymentFailedEmail(email, name, sub.FailedPaymentCount, float64(amountDue)/100, currency, *sub.GraceDeadline); err != nil {
				m.log.Error().Err(err).Msg("could not send payment failed email")
			}
		}
	}

	return nil
}

// HandlePaymentRecovered clears all dunning state after a successful charge.
// The level returns to none and any suspension is lifted.
func (m *Manager) HandlePaymentRecovered(ctx context.Context, stripeSubscriptionID string) error {
	var sub model.Subscription
	if err := m.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error; err != nil {
		return fmt.Errorf("payment recovered for unknown subscription %s: %w", stripeSubscriptionID, err)
	}

	updates := map[string]interface{}{
		"failed_payment_count":   0,
		"last_payment_failed_at": nil,
		"grace_deadline":         nil,
	}
	if sub.Status == model.StatusPastDue || sub.Status == model.StatusUnpaid {
		updates["status"] = model.StatusActive
	}

	if err := m.db.WithContext(ctx).Model(&sub).Updates(updates).Error; err != nil {
		return err
	}

	m.log.Info().
		Uint("organization_id", sub.OrganizationID).
		Msg("payment recovered, dunning state cleared")

	if m.mailer != nil {
		email, name, err := m.ownerContact(ctx, sub.OrganizationID)
		if err == nil {
			if err := m.mailer.SendPaymentRecoveredEmail(email, name); err != nil {
				m.log.Error().Err(err).Msg("could not send payment recovered email")
			}
		}
	}

	return nil
}

// SweepExpiredGrace suspends PAST_DUE subscriptions whose grace deadline has
// elapsed. Run daily by cron; returns how many were suspended.
func (m *Manager) SweepExpiredGrace(ctx context.Context, now time.Time) (int, error) {
	var subs []model.Subscription
	err := m.db.WithContext(ctx).
		Where("status = ? AND grace_deadline IS NOT NULL AND grace_deadline <= ?", model.StatusPastDue, now).
		Find(&subs).Error
	if err != nil {
		return 0, err
	}

	suspended := 0
	for _, sub := range subs {
		if err := m.db.WithContext(ctx).Model(&sub).Update("status", model.StatusUnpaid).Error; err != nil {
			m.log.Error().Err(err).Uint("organization_id", sub.OrganizationID).Msg("could not suspend subscription")
			continue
		}
		suspended++

		m.log.Warn().Uint("organization_id", sub.OrganizationID).Msg("grace period elapsed, subscription suspended")

		if m.mailer != nil {
			email, name, err := m.ownerContact(ctx, sub.OrganizationID)
			if err == nil {
				if err := m.mailer.SendSubscriptionSuspendedEmail(email, name); err != nil {
					m.log.Error().Err(err).Msg("could not send suspension email")
				}
			}
		}
	}

	return suspended, nil
}

// NotifyApproachingDeadlines emails organizations whose grace deadline lands
// exactly N days out, so each org hears once per threshold.
func (m *Manager) NotifyApproachingDeadlines(ctx context.Context, now time.Time) error {
	for _, days := range []int{m.policy.GraceWarningDays, 1} {
		targetDate := now.AddDate(0, 0, days).Format("2006-01-02")

		var subs []model.Subscription
		err := m.db.WithContext(ctx).
			Where("status = ? AND DATE(grace_deadline) = ?", model.StatusPastDue, targetDate).
			Find(&subs).Error
		if err != nil {
			m.log.Error().Err(err).Msg("error fetching subscriptions near grace deadline")
			continue
		}

		for _, sub := range subs {
			if m.mailer == nil {
				continue
			}
			email, name, err := m.ownerContact(ctx, sub.OrganizationID)
			if err != nil {
				continue
			}
			if err := m.mailer.SendGraceWarningEmail(email, name, days); err != nil {
				m.log.Error().Err(err).Uint("organization_id", sub.OrganizationID).Msg("could not send grace warning email")
			}
		}
	}
	return nil
}

func (m *Manager) ownerContact(ctx context.Context, organizationID uint) (string, string, error) {
	var user model.User
	err := m.db.WithContext(ctx).
		Preload("Organization").
		Where("organization_id = ? AND role = ?", organizationID, "owner").
		First(&user).Error
	if err != nil {
		return "", "", err
	}
	return user.Email, user.Organization.Name, nil
}
