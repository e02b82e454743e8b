package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
	"tightship_backend/pkg/metrics"
	"tightship_backend/pkg/plan"
)

// Resource identifies a countable, plan-limited resource kind.
type Resource string

const (
	ResourceRestaurants Resource = "restaurants"
	ResourceProducts    Resource = "products"
	ResourceAPICalls    Resource = "apiCalls"
)

// Snapshot reports consumption of one resource against the active plan.
type Snapshot struct {
	Resource    Resource `json:"resource"`
	Current     int64    `json:"current"`
	Limit       int      `json:"limit"`
	Remaining   int64    `json:"remaining"`
	IsUnlimited bool     `json:"is_unlimited"`
}

// LimitExceededError is the structured rejection surfaced to the UI as an
// upgrade prompt rather than a generic failure.
type LimitExceededError struct {
	Code         string   `json:"code"`
	Message      string   `json:"message"`
	Resource     Resource `json:"resource"`
	CurrentUsage int64    `json:"current_usage"`
	Limit        int      `json:"limit"`
	UpgradeURL   string   `json:"upgrade_url"`
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit reached (%d/%d)", e.Resource, e.CurrentUsage, e.Limit)
}

// Service answers "how much of X has this organization used" against live
// rows, plus a Redis counter for API calls.
type Service struct {
	db         *gorm.DB
	rdb        *redis.Client
	upgradeURL string
}

func NewService(db *gorm.DB, rdb *redis.Client, upgradeURL string) *Service {
	return &Service{db: db, rdb: rdb, upgradeURL: upgradeURL}
}

// Check is read-only: count the tenant's own rows and compare against the
// active plan. An organization with no subscription row gets FREE defaults.
func (s *Service) Check(ctx context.Context, organizationID uint, resource Resource) (Snapshot, error) {
	limit := s.limitFor(ctx, organizationID, resource)

	current, err := s.currentFor(ctx, s.db, organizationID, resource)
	if err != nil {
		return Snapshot{}, err
	}

	return buildSnapshot(resource, current, limit), nil
}

// CheckAndReserve runs the limit check and the resource-creating write inside
// one transaction, so two requests racing at the boundary cannot both pass.
func (s *Service) CheckAndReserve(ctx context.Context, organizationID uint, resource Resource, create func(tx *gorm.DB) error) error {
	limit := s.limitFor(ctx, organizationID, resource)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.currentFor(ctx, tx, organizationID, resource)
		if err != nil {
			return err
		}

		snap := buildSnapshot(resource, current, limit)
		if !snap.IsUnlimited && current >= int64(limit) {
			metrics.LimitRejections.WithLabelValues(string(resource)).Inc()
			return s.ExceededError(snap)
		}

		return create(tx)
	})
}

// ExceededError builds the structured rejection for a spent snapshot. Every
// limit rejection surfaces through this shape, upgrade URL included.
func (s *Service) ExceededError(snap Snapshot) *LimitExceededError {
	return &LimitExceededError{
		Code:         "LIMIT_EXCEEDED",
		Message:      fmt.Sprintf("Your plan allows %d %s. Upgrade to add more.", snap.Limit, snap.Resource),
		Resource:     snap.Resource,
		CurrentUsage: snap.Current,
		Limit:        snap.Limit,
		UpgradeURL:   s.upgradeURL,
	}
}

// RecordAPICall bumps the per-organization monthly counter. The key expires
// well after the month rolls over, so stale windows clean themselves up.
func (s *Service) RecordAPICall(ctx context.Context, organizationID uint) (int64, error) {
	key := apiCallKey(organizationID, time.Now())

	pipe := s.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 40*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

func (s *Service) limitFor(ctx context.Context, organizationID uint, resource Resource) int {
	var sub model.Subscription
	err := s.db.WithContext(ctx).
		Preload("Plan").
		Where("organization_id = ?", organizationID).
		First(&sub).Error
	if err != nil {
		// Unreachable given signup creates a subscription, but degrade to
		// FREE limits rather than failing the request.
		return freeLimit(resource)
	}

	switch resource {
	case ResourceRestaurants:
		return sub.Plan.MaxRestaurants
	case ResourceProducts:
		return sub.Plan.MaxProducts
	case ResourceAPICalls:
		return sub.Plan.MaxAPICalls
	}
	return 0
}

func (s *Service) currentFor(ctx context.Context, tx *gorm.DB, organizationID uint, resource Resource) (int64, error) {
	switch resource {
	case ResourceRestaurants:
		var n int64
		err := tx.WithContext(ctx).Model(&model.Restaurant{}).
			Where("organization_id = ?", organizationID).Count(&n).Error
		return n, err
	case ResourceProducts:
		var n int64
		err := tx.WithContext(ctx).Model(&model.Product{}).
			Where("organization_id = ?", organizationID).Count(&n).Error
		return n, err
	case ResourceAPICalls:
		n, err := s.rdb.Get(ctx, apiCallKey(organizationID, time.Now())).Int64()
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return n, err
	}
	return 0, fmt.Errorf("unknown resource kind: %s", resource)
}

func buildSnapshot(resource Resource, current int64, limit int) Snapshot {
	snap := Snapshot{
		Resource:    resource,
		Current:     current,
		Limit:       limit,
		IsUnlimited: plan.IsUnlimited(limit),
	}
	if snap.IsUnlimited {
		snap.Remaining = -1
		return snap
	}
	snap.Remaining = int64(limit) - current
	if snap.Remaining < 0 {
		snap.Remaining = 0
	}
	return snap
}

func freeLimit(resource Resource) int {
	limits := plan.Get(plan.TierFree).Limits
	switch resource {
	case ResourceRestaurants:
		return limits.Restaurants
	case ResourceProducts:
		return limits.Products
	case ResourceAPICalls:
		return limits.APICalls
	}
	return 0
}

func apiCallKey(organizationID uint, now time.Time) string {
	return fmt.Sprintf("usage:apicalls:%d:%s", organizationID, now.Format("2006-01"))
}
