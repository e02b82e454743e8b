package controller

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tightship_backend/pkg/ratelimit"
	"tightship_backend/pkg/usage"
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

func newPublicApp(t *testing.T) (*fiber.App, sqlmock.Sqlmock, *redis.Client) {
	t.Helper()

	db, mock := newMockDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	usageSvc := usage.NewService(db, rdb, "https://app.example.com/upgrade")
	limiter := ratelimit.NewLimiter(rdb, 60, time.Minute)
	pc := NewPublicController(db, usageSvc, limiter, nil, zerolog.Nop())

	app := fiber.New()
	app.Get("/api/public/menus/:restaurant_slug", pc.GetMenu)
	return app, mock, rdb
}

func expectPublicOrg(mock sqlmock.Sqlmock, orgID uint) {
	mock.ExpectQuery(`SELECT (.+) FROM "organizations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "api_key"}).
			AddRow(orgID, "The Crown", "the-crown", "key_crown"))
}

func expectPublicSubscription(mock sqlmock.Sqlmock, tier string, maxAPICalls int) {
	mock.ExpectQuery(`SELECT (.+) FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "plan_id", "status"}).
			AddRow(1, 1, 2, "ACTIVE"))
	mock.ExpectQuery(`SELECT (.+) FROM "plans"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tier", "max_api_calls"}).
			AddRow(2, tier, maxAPICalls))
}

func TestGetMenuRequiresAPIKey(t *testing.T) {
	app, _, _ := newPublicApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/api/public/menus/the-crown", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestGetMenuFreeTierIsForbidden(t *testing.T) {
	app, mock, _ := newPublicApp(t)

	expectPublicOrg(mock, 1)
	expectPublicSubscription(mock, "FREE", 1000)

	req := httptest.NewRequest(fiber.MethodGet, "/api/public/menus/the-crown", nil)
	req.Header.Set("X-API-Key", "key_crown")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "FEATURE_NOT_AVAILABLE")
}

func TestGetMenuQuotaExceededCarriesUpgradeURL(t *testing.T) {
	app, mock, rdb := newPublicApp(t)

	expectPublicOrg(mock, 1)
	expectPublicSubscription(mock, "STARTER", 10000)
	// Quota check loads the plan limits again.
	expectPublicSubscription(mock, "STARTER", 10000)

	key := fmt.Sprintf("usage:apicalls:1:%s", time.Now().Format("2006-01"))
	require.NoError(t, rdb.Set(context.Background(), key, 10000, 0).Err())

	req := httptest.NewRequest(fiber.MethodGet, "/api/public/menus/the-crown", nil)
	req.Header.Set("X-API-Key", "key_crown")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "59", resp.Header.Get("X-RateLimit-Remaining"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"code":"LIMIT_EXCEEDED"`)
	assert.Contains(t, string(body), `"current_usage":10000`)
	assert.Contains(t, string(body), `"limit":10000`)
	assert.Contains(t, string(body), `"upgrade_url":"https://app.example.com/upgrade"`)
}
