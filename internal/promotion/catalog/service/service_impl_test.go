package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/pillstack/backoffice/internal/clock"
	catalogrepo "github.com/pillstack/backoffice/internal/promotion/catalog/repository"
	catalogservice "github.com/pillstack/backoffice/internal/promotion/catalog/service"
	"github.com/pillstack/backoffice/internal/promotion/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type catalogFixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	catalog domain.Catalog
}

func setupCatalog(t *testing.T) catalogFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Promotion{}, &domain.ReferralCode{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	catalog := catalogservice.New(catalogservice.Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		Clock: fake,
		Repo:  catalogrepo.Provide(),
	})

	return catalogFixture{db: db, node: node, clock: fake, catalog: catalog}
}

func (f catalogFixture) seedPromotion(t *testing.T, code string, active bool) domain.Promotion {
	t.Helper()
	promo := domain.Promotion{
		ID:            f.node.Generate(),
		Code:          code,
		Name:          code + " promotion",
		DiscountType:  domain.DiscountPercent,
		DiscountValue: 20,
		Active:        active,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&promo).Error)
	return promo
}

func (f catalogFixture) seedReferral(t *testing.T, code string, promotionID snowflake.ID, maxUses, usedCount int, active bool, expiresAt *time.Time) {
	t.Helper()
	ref := domain.ReferralCode{
		ID:          f.node.Generate(),
		Code:        code,
		PromotionID: promotionID,
		MaxUses:     maxUses,
		UsedCount:   usedCount,
		Active:      active,
		ExpiresAt:   expiresAt,
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&ref).Error)
}

func TestResolveConsumesOneUse(t *testing.T) {
	ctx := context.Background()
	f := setupCatalog(t)
	promo := f.seedPromotion(t, "WELCOME10", true)
	f.seedReferral(t, "FRIEND-1", promo.ID, 2, 0, true, nil)

	got, err := f.catalog.Resolve(ctx, "FRIEND-1")
	require.NoError(t, err)
	assert.Equal(t, promo.ID, got.ID)

	var used int
	require.NoError(t, f.db.Raw(`SELECT used_count FROM referral_codes WHERE code = ?`, "FRIEND-1").Scan(&used).Error)
	assert.Equal(t, 1, used)
}

func TestPeekDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	f := setupCatalog(t)
	promo := f.seedPromotion(t, "WELCOME10", true)
	f.seedReferral(t, "FRIEND-1", promo.ID, 1, 0, true, nil)

	got, err := f.catalog.Peek(ctx, "FRIEND-1")
	require.NoError(t, err)
	assert.Equal(t, promo.ID, got.ID)

	var used int
	require.NoError(t, f.db.Raw(`SELECT used_count FROM referral_codes WHERE code = ?`, "FRIEND-1").Scan(&used).Error)
	assert.Equal(t, 0, used)
}

func TestResolveRejections(t *testing.T) {
	ctx := context.Background()
	f := setupCatalog(t)
	promo := f.seedPromotion(t, "WELCOME10", true)
	inactivePromo := f.seedPromotion(t, "RETIRED", false)

	expired := f.clock.Now().Add(-time.Hour)
	f.seedReferral(t, "DEAD-CODE", promo.ID, 5, 0, false, nil)
	f.seedReferral(t, "OLD-CODE", promo.ID, 5, 0, true, &expired)
	f.seedReferral(t, "SPENT-CODE", promo.ID, 1, 1, true, nil)
	f.seedReferral(t, "RETIRED-CODE", inactivePromo.ID, 5, 0, true, nil)

	cases := []struct {
		code    string
		wantErr error
	}{
		{"DEAD-CODE", domain.ErrCodeInactive},
		{"OLD-CODE", domain.ErrCodeExpired},
		{"SPENT-CODE", domain.ErrCodeExhausted},
		{"RETIRED-CODE", domain.ErrInactive},
		{"NO-SUCH-CODE", domain.ErrCodeNotFound},
		{"", domain.ErrCodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			_, err := f.catalog.Resolve(ctx, tc.code)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestResolveUnlimitedCode(t *testing.T) {
	ctx := context.Background()
	f := setupCatalog(t)
	promo := f.seedPromotion(t, "WELCOME10", true)
	f.seedReferral(t, "EVERGREEN", promo.ID, 0, 40, true, nil)

	_, err := f.catalog.Resolve(ctx, "EVERGREEN")
	require.NoError(t, err)

	var used int
	require.NoError(t, f.db.Raw(`SELECT used_count FROM referral_codes WHERE code = ?`, "EVERGREEN").Scan(&used).Error)
	assert.Equal(t, 41, used)
}

func TestListAndGetByCode(t *testing.T) {
	ctx := context.Background()
	f := setupCatalog(t)
	f.seedPromotion(t, "WELCOME10", true)
	f.seedPromotion(t, "RETIRED", false)

	all, err := f.catalog.List(ctx, domain.ListPromotionRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Promotions, 2)

	activeOnly, err := f.catalog.List(ctx, domain.ListPromotionRequest{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, activeOnly.Promotions, 1)
	assert.Equal(t, "WELCOME10", activeOnly.Promotions[0].Code)

	got, err := f.catalog.GetByCode(ctx, "WELCOME10")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", got.Code)

	_, err = f.catalog.GetByCode(ctx, "MISSING")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
