package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"referral-engine/models"
	"referral-engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Member{},
		&models.ReferralRelation{},
		&models.Transaction{},
		&models.ProcessedEvent{},
		&models.Withdrawal{},
	))

	locks := services.NewUserLocks()
	graph := services.NewGraphService(db)
	ledger := services.NewLedgerService(db, locks)
	commission := services.NewCommissionService(db, graph, services.DefaultCommissionConfig())
	members := services.NewMemberService(db, graph, ledger, commission, "http://localhost:5300")
	withdrawals := services.NewWithdrawalService(db, locks)
	analytics := services.NewAnalyticsService(db, nil, time.Minute)

	app := fiber.New()
	SetupMemberRoutes(app, members, graph, analytics)
	SetupTransactionRoutes(app, ledger)
	SetupWithdrawalRoutes(app, withdrawals)
	SetupEventRoutes(app, commission)
	SetupAnalyticsRoutes(app, analytics)
	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var parsed map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	return resp, parsed
}

func asUser(id string) map[string]string {
	return map[string]string{"X-User-ID": id}
}

func TestRegistrationFlowOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, "POST", "/users/register",
		fiber.Map{"username": "alice"}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 0, body["bonuses_distributed"])
	alice := body["user"].(map[string]any)
	code := alice["referral_code"].(string)
	aliceID := alice["id"].(string)

	resp, body = doJSON(t, app, "POST", "/users/register",
		fiber.Map{"username": "bob", "referrer_code": code}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 1, body["bonuses_distributed"])

	// Unknown code: member creation rolls back with the attach.
	resp, _ = doJSON(t, app, "POST", "/users/register",
		fiber.Map{"username": "mallory", "referrer_code": "NOSUCH01"}, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, stats := doJSON(t, app, "GET", "/users/"+aliceID+"/stats", nil, asUser(aliceID))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "standard", stats["rank"])
	assert.EqualValues(t, 1, stats["referral_count"])
	assert.EqualValues(t, 0, stats["active_referrals"])

	// Secured routes refuse requests without gateway identity headers.
	resp, _ = doJSON(t, app, "GET", "/users/"+aliceID+"/stats", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestDepositEventOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	_, body := doJSON(t, app, "POST", "/users/register", fiber.Map{"username": "alice"}, nil)
	code := body["user"].(map[string]any)["referral_code"].(string)
	_, body = doJSON(t, app, "POST", "/users/register",
		fiber.Map{"username": "bob", "referrer_code": code}, nil)
	bobID := body["user"].(map[string]any)["id"].(string)

	resp, body := doJSON(t, app, "POST", "/events/deposit",
		fiber.Map{"user_id": bobID, "amount": "1000", "deposit_id": "dep-1"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["bonuses_distributed"])

	// Replay: still success, nothing new paid out.
	resp, body = doJSON(t, app, "POST", "/events/deposit",
		fiber.Map{"user_id": bobID, "amount": "1000", "deposit_id": "dep-1"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["bonuses_distributed"])

	resp, _ = doJSON(t, app, "POST", "/events/deposit",
		fiber.Map{"user_id": "missing", "amount": "10", "deposit_id": "dep-2"}, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/events/deposit",
		fiber.Map{"amount": "10", "deposit_id": "dep-3"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

// Both webhooks are service-to-service calls: they carry no end-user
// identity headers and must never hit the user-context middleware,
// regardless of route registration order.
func TestTournamentEventOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	_, body := doJSON(t, app, "POST", "/users/register", fiber.Map{"username": "alice"}, nil)
	code := body["user"].(map[string]any)["referral_code"].(string)
	_, body = doJSON(t, app, "POST", "/users/register",
		fiber.Map{"username": "bob", "referrer_code": code}, nil)
	bobID := body["user"].(map[string]any)["id"].(string)

	resp, body := doJSON(t, app, "POST", "/events/tournament-first-completed",
		fiber.Map{"user_id": bobID, "tournament_id": "t-1"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["bonuses_distributed"])

	// Second tournament: success, but not a first completion.
	resp, body = doJSON(t, app, "POST", "/events/tournament-first-completed",
		fiber.Map{"user_id": bobID, "tournament_id": "t-2"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["bonuses_distributed"])
}

func TestWithdrawalResolutionOverHTTP(t *testing.T) {
	app, db := newTestApp(t)

	_, body := doJSON(t, app, "POST", "/users/register",
		fiber.Map{"username": "ivy", "class": "influencer"}, nil)
	ivyID := body["user"].(map[string]any)["id"].(string)

	// Seed cash directly; commissions are exercised elsewhere.
	locks := services.NewUserLocks()
	ledger := services.NewLedgerService(db, locks)
	_, err := ledger.Append(context.Background(), &models.Transaction{
		UserID:   ivyID,
		Amount:   decimal.RequireFromString("500"),
		Currency: models.CurrencyCash,
		Type:     models.TransactionReferralBonus,
	})
	require.NoError(t, err)

	resp, created := doJSON(t, app, "POST", "/withdrawals",
		fiber.Map{"amount": "300", "method": "card", "payment_details": "4111-xxxx"}, asUser(ivyID))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	wid := created["id"].(string)

	// The owner can read it, a stranger cannot.
	resp, _ = doJSON(t, app, "GET", "/withdrawals/"+wid, nil, asUser(ivyID))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, app, "GET", "/withdrawals/"+wid, nil, asUser("someone-else"))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// Resolution is operator-only.
	resp, _ = doJSON(t, app, "PATCH", "/admin/withdrawals/"+wid,
		fiber.Map{"status": "approved"}, asUser(ivyID))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	admin := map[string]string{"X-User-ID": "op-1", "X-User-Roles": "support,admin"}
	resp, resolved := doJSON(t, app, "PATCH", "/admin/withdrawals/"+wid,
		fiber.Map{"status": "approved"}, admin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "approved", resolved["status"])

	// Terminal: resolving again conflicts.
	resp, _ = doJSON(t, app, "PATCH", "/admin/withdrawals/"+wid,
		fiber.Map{"status": "rejected", "rejection_reason": "oops"}, admin)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestAdminStatsRequireAdmin(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, "GET", "/admin/stats", nil, asUser("u-1"))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	admin := map[string]string{"X-User-ID": "op-1", "X-User-Roles": "admin"}
	resp, body := doJSON(t, app, "GET", "/admin/stats", nil, admin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "total_users")
}
