package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Service delivers transactional mail through the resend REST API. It is
// constructed once in main and injected wherever mail is sent.
type Service struct {
	apiKey    string
	from      string
	client    *http.Client
	templates *template.Template
	log       zerolog.Logger
}

type payload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Html    string `json:"html"`
}

// Template data structures
type WelcomeEmailData struct {
	OrganizationName string
}

type SubscriptionStartedData struct {
	OrganizationName string
	PlanName         string
	Price            float64
	PeriodEnd        time.Time
}

type SubscriptionCancelledData struct {
	OrganizationName string
	PlanName         string
	ActiveUntil      time.Time
}

type PaymentFailedData struct {
	OrganizationName string
	AttemptCount     int
	AmountDue        float64
	Currency         string
	GraceDeadline    time.Time
}

type PaymentRecoveredData struct {
	OrganizationName string
}

type SuspendedData struct {
	OrganizationName string
}

type GraceWarningData struct {
	OrganizationName string
	DaysLeft         int
}

func NewService(apiKey, from string, log zerolog.Logger) (*Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("error loading email templates: %w", err)
	}

	return &Service{
		apiKey:    apiKey,
		from:      from,
		client:    &http.Client{Timeout: 15 * time.Second},
		templates: templates,
		log:       log,
	}, nil
}

func (s *Service) sendTemplateEmail(to, subject, templateName string, data interface{}) error {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("template execution error: %w", err)
	}

	jsonData, err := json.Marshal(payload{
		From:    s.from,
		To:      to,
		Subject: subject,
		Html:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("error marshaling email data: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, "https://api.resend.com/emails", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("resend API error: %s", string(respBody))
	}

	s.log.Debug().Str("to", to).Str("template", templateName).Msg("email sent")
	return nil
}

func (s *Service) SendWelcomeEmail(to, organizationName string) error {
	return s.sendTemplateEmail(to, "Welcome to Tightship! 🎉", "welcome.html",
		WelcomeEmailData{OrganizationName: organizationName})
}

func (s *Service) SendSubscriptionStartedEmail(to, organizationName, planName string, price float64, periodEnd time.Time) error {
	return s.sendTemplateEmail(to, "Your Tightship subscription is live 🎉", "subscription_started.html",
		SubscriptionStartedData{
			OrganizationName: organizationName,
			PlanName:         planName,
			Price:            price,
			PeriodEnd:        periodEnd,
		})
}

func (s *Service) SendSubscriptionCancelledEmail(to, organizationName, planName string, activeUntil time.Time) error {
	return s.sendTemplateEmail(to, "Your subscription has been cancelled", "subscription_cancelled.html",
		SubscriptionCancelledData{
			OrganizationName: organizationName,
			PlanName:         planName,
			ActiveUntil:      activeUntil,
		})
}

func (s *Service) SendPaymentFailedEmail(to, organizationName string, attemptCount int, amountDue float64, currency string, graceDeadline time.Time) error {
	return s.sendTemplateEmail(to, "Payment failed - action needed ⚠️", "payment_failed.html",
		PaymentFailedData{
			OrganizationName: organizationName,
			AttemptCount:     attemptCount,
			AmountDue:        amountDue,
			Currency:         currency,
			GraceDeadline:    graceDeadline,
		})
}

func (s *Service) SendPaymentRecoveredEmail(to, organizationName string) error {
	return s.sendTemplateEmail(to, "Payment received ✅", "payment_recovered.html",
		PaymentRecoveredData{OrganizationName: organizationName})
}

func (s *Service) SendSubscriptionSuspendedEmail(to, organizationName string) error {
	return s.sendTemplateEmail(to, "Your account has been suspended", "suspended.html",
		SuspendedData{OrganizationName: organizationName})
}

func (s *Service) SendGraceWarningEmail(to, organizationName string, daysLeft int) error {
	return s.sendTemplateEmail(to,
		fmt.Sprintf("Payment overdue: %d days until suspension ⚠️", daysLeft),
		"grace_warning.html",
		GraceWarningData{OrganizationName: organizationName, DaysLeft: daysLeft})
}
