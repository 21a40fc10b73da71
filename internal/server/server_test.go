package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	billingservice "github.com/pillstack/backoffice/internal/billing/service"
	"github.com/pillstack/backoffice/internal/clock"
	"github.com/pillstack/backoffice/internal/config"
	paymentdomain "github.com/pillstack/backoffice/internal/payment/domain"
	paymentrepo "github.com/pillstack/backoffice/internal/payment/repository"
	paymentservice "github.com/pillstack/backoffice/internal/payment/service"
	catalogrepo "github.com/pillstack/backoffice/internal/promotion/catalog/repository"
	catalogservice "github.com/pillstack/backoffice/internal/promotion/catalog/service"
	promotiondomain "github.com/pillstack/backoffice/internal/promotion/domain"
	reservationdomain "github.com/pillstack/backoffice/internal/reservation/domain"
	reservationrepo "github.com/pillstack/backoffice/internal/reservation/repository"
	reservationservice "github.com/pillstack/backoffice/internal/reservation/service"
	"github.com/pillstack/backoffice/internal/server"
	subscriptionrepo "github.com/pillstack/backoffice/internal/subscription/repository"
	usagedomain "github.com/pillstack/backoffice/internal/usagehistory/domain"
	usageservice "github.com/pillstack/backoffice/internal/usagehistory/service"
	userdomain "github.com/pillstack/backoffice/internal/user/domain"
	userrepo "github.com/pillstack/backoffice/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	engine *gin.Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
		&promotiondomain.Promotion{},
		&promotiondomain.ReferralCode{},
		&reservationdomain.Reservation{},
		&usagedomain.Record{},
	))

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)
	cfg := config.Config{HTTPAddr: ":0", AssignBatchSize: 10}

	catRepo := catalogrepo.Provide()
	resRepo := reservationrepo.Provide()
	ledger := usageservice.New(usageservice.Params{DB: db, Log: log, GenID: node})
	catalog := catalogservice.New(catalogservice.Params{DB: db, Log: log, Clock: fake, Repo: catRepo})

	calculator := billingservice.New(billingservice.Params{
		DB:              db,
		Log:             log,
		Clock:           fake,
		Cfg:             cfg,
		ReservationRepo: resRepo,
		PromotionRepo:   catRepo,
		UserRepo:        userrepo.Provide(),
		Ledger:          ledger,
	})
	payments := paymentservice.New(paymentservice.Params{
		DB:         db,
		Log:        log,
		Clock:      fake,
		GenID:      node,
		Repo:       paymentrepo.Provide(),
		Calculator: calculator,
	})
	assignSvc := reservationservice.New(reservationservice.Params{
		DB:               db,
		Log:              log,
		Clock:            fake,
		Cfg:              cfg,
		GenID:            node,
		Repo:             resRepo,
		UserRepo:         userrepo.Provide(),
		PaymentRepo:      paymentrepo.Provide(),
		SubscriptionRepo: subscriptionrepo.Provide(),
		PromotionRepo:    catRepo,
		Catalog:          catalog,
		Ledger:           ledger,
	})

	engine := server.NewEngine()
	server.NewServer(server.ServerParams{
		Gin:       engine,
		Cfg:       cfg,
		Log:       log,
		AssignSvc: assignSvc,
		Catalog:   catalog,
		Payments:  payments,
	})

	return &fixture{db: db, node: node, engine: engine}
}

func (f *fixture) seedUser(t *testing.T) userdomain.User {
	t.Helper()
	user := userdomain.User{
		ID:             f.node.Generate(),
		Email:          "pharm@example.com",
		PharmacyName:   "On-Dal Pharmacy",
		BusinessNumber: "123-45-67890",
	}
	require.NoError(t, f.db.Create(&user).Error)
	return user
}

func (f *fixture) seedPromotion(t *testing.T) promotiondomain.Promotion {
	t.Helper()
	promo := promotiondomain.Promotion{
		ID:              f.node.Generate(),
		Code:            "WELCOME20",
		Name:            "welcome discount",
		DiscountType:    promotiondomain.DiscountPercent,
		DiscountValue:   20,
		MaxUsagePerUser: 1,
		Active:          true,
	}
	require.NoError(t, f.db.Create(&promo).Error)
	return promo
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAssignPromotionEndpoint(t *testing.T) {
	f := setup(t)
	promo := f.seedPromotion(t)
	user := f.seedUser(t)

	rec := f.do(t, http.MethodPost, "/admin/api/assign-promotion", map[string]any{
		"promotion_id": promo.ID.String(),
		"user_ids":     []string{user.ID.String()},
		"memo":         "spring campaign",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Assigned int `json:"assigned"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Assigned)

	pending := f.do(t, http.MethodGet, "/admin/api/assign-promotion/assignments", nil)
	assert.Equal(t, http.StatusOK, pending.Code)
	assert.Contains(t, pending.Body.String(), "WELCOME20")
}

func TestSingleAssignConflictMapsTo409(t *testing.T) {
	f := setup(t)
	promo := f.seedPromotion(t)
	user := f.seedUser(t)

	body := map[string]any{
		"promotion_id": promo.ID.String(),
		"user_id":      user.ID.String(),
	}
	first := f.do(t, http.MethodPost, "/admin/api/assign-promotion/single", body)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := f.do(t, http.MethodPost, "/admin/api/assign-promotion/single", body)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "already_reserved")
}

func TestCancelUnknownAssignmentReturns404(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodDelete, fmt.Sprintf("/admin/api/assign-promotion/assignments/%s", f.node.Generate()), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentEventEndpointAppliesDiscount(t *testing.T) {
	f := setup(t)
	promo := f.seedPromotion(t)
	user := f.seedUser(t)

	assign := f.do(t, http.MethodPost, "/admin/api/assign-promotion/single", map[string]any{
		"promotion_id": promo.ID.String(),
		"user_id":      user.ID.String(),
	})
	require.Equal(t, http.StatusOK, assign.Code, assign.Body.String())

	rec := f.do(t, http.MethodPost, "/api/payments/events", map[string]any{
		"event_id":    "evt_http_1",
		"event_type":  "payment_succeeded",
		"user_id":     user.ID.String(),
		"base_amount": 10000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Amount int64 `json:"amount"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 8000, resp.Data.Amount)
}

func TestReferralRedeemEndpoint(t *testing.T) {
	f := setup(t)
	promo := f.seedPromotion(t)
	user := f.seedUser(t)
	ref := promotiondomain.ReferralCode{
		ID:          f.node.Generate(),
		Code:        "FRIEND-1",
		PromotionID: promo.ID,
		MaxUses:     5,
		Active:      true,
	}
	require.NoError(t, f.db.Create(&ref).Error)

	rec := f.do(t, http.MethodPost, "/api/referral/redeem", map[string]any{
		"code":    "FRIEND-1",
		"user_id": user.ID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"referral"`)

	bad := f.do(t, http.MethodPost, "/api/referral/redeem", map[string]any{
		"code":    "NO-SUCH",
		"user_id": user.ID.String(),
	})
	assert.Equal(t, http.StatusNotFound, bad.Code)
}

func TestListPromotionsEndpoint(t *testing.T) {
	f := setup(t)
	f.seedPromotion(t)

	rec := f.do(t, http.MethodGet, "/admin/api/promotions?active_only=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "WELCOME20")
}
