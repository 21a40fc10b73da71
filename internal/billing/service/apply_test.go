package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/pillstack/backoffice/internal/billing/domain"
	billingservice "github.com/pillstack/backoffice/internal/billing/service"
	"github.com/pillstack/backoffice/internal/clock"
	"github.com/pillstack/backoffice/internal/config"
	catalogrepo "github.com/pillstack/backoffice/internal/promotion/catalog/repository"
	promotiondomain "github.com/pillstack/backoffice/internal/promotion/domain"
	reservationdomain "github.com/pillstack/backoffice/internal/reservation/domain"
	reservationrepo "github.com/pillstack/backoffice/internal/reservation/repository"
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
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	calculator billingdomain.Calculator
	resRepo    reservationdomain.Repository
}

func setup(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&promotiondomain.Promotion{},
		&reservationdomain.Reservation{},
		&usagedomain.Record{},
	))

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)
	resRepo := reservationrepo.Provide()

	calculator := billingservice.New(billingservice.Params{
		DB:              db,
		Log:             log,
		Clock:           fake,
		Cfg:             config.Config{ReservationTTL: ttl},
		ReservationRepo: resRepo,
		PromotionRepo:   catalogrepo.Provide(),
		UserRepo:        userrepo.Provide(),
		Ledger:          usageservice.New(usageservice.Params{DB: db, Log: log, GenID: node}),
	})

	return &fixture{db: db, node: node, clock: fake, calculator: calculator, resRepo: resRepo}
}

func (f *fixture) seedUser(t *testing.T, businessNumber string) userdomain.User {
	t.Helper()
	user := userdomain.User{
		ID:             f.node.Generate(),
		Email:          "pharm@example.com",
		BusinessNumber: businessNumber,
		CreatedAt:      f.clock.Now(),
		UpdatedAt:      f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&user).Error)
	return user
}

func (f *fixture) seedPromotion(t *testing.T, kind promotiondomain.DiscountType, value int64, freeMonths int) promotiondomain.Promotion {
	t.Helper()
	promo := promotiondomain.Promotion{
		ID:              f.node.Generate(),
		Code:            "PROMO-" + f.node.Generate().String(),
		Name:            "test promotion",
		DiscountType:    kind,
		DiscountValue:   value,
		FreeMonths:      freeMonths,
		MaxUsagePerUser: 1,
		Active:          true,
		CreatedAt:       f.clock.Now(),
		UpdatedAt:       f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&promo).Error)
	return promo
}

func (f *fixture) seedReservation(t *testing.T, userID, promotionID snowflake.ID) reservationdomain.Reservation {
	t.Helper()
	reservation := reservationdomain.Reservation{
		ID:          f.node.Generate(),
		UserID:      userID,
		PromotionID: promotionID,
		Source:      reservationdomain.SourceAdminAssigned,
		Status:      reservationdomain.StatusReserved,
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&reservation).Error)
	return reservation
}

func TestComputeChargeWithoutReservation(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 0)
	user := f.seedUser(t, "123-45-67890")

	charge, err := f.calculator.ComputeCharge(ctx, user.ID, 10000)
	require.NoError(t, err)
	assert.EqualValues(t, 10000, charge.NextAmount)
	assert.Nil(t, charge.Reservation)
}

func TestComputeChargeWithPercentReservation(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 0)
	user := f.seedUser(t, "123-45-67890")
	promo := f.seedPromotion(t, promotiondomain.DiscountPercent, 20, 0)
	f.seedReservation(t, user.ID, promo.ID)

	charge, err := f.calculator.ComputeCharge(ctx, user.ID, 10000)
	require.NoError(t, err)
	assert.EqualValues(t, 8000, charge.NextAmount)
	require.NotNil(t, charge.Reservation)
	assert.Equal(t, string(promotiondomain.DiscountPercent), charge.Discount)
}

func TestComputeChargeRejectsNegativeBase(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 0)

	_, err := f.calculator.ComputeCharge(ctx, f.node.Generate(), -1)
	assert.ErrorIs(t, err, billingdomain.ErrInvalidBasePrice)
}

func TestApplyOnPaymentSettlesReservation(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 0)
	user := f.seedUser(t, "123-45-67890")
	promo := f.seedPromotion(t, promotiondomain.DiscountAmount, 3000, 0)
	reservation := f.seedReservation(t, user.ID, promo.ID)
	paymentID := f.node.Generate()

	result, err := f.calculator.ApplyOnPayment(ctx, billingdomain.ApplyRequest{
		UserID:     user.ID,
		PaymentID:  paymentID,
		OccurredAt: f.clock.Now(),
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, reservation.ID, result.ReservationID)
	assert.Equal(t, promo.Code, result.PromotionCode)
	assert.True(t, result.LedgerExhausted)

	stored, err := f.resRepo.FindByID(ctx, f.db, reservation.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AppliedAt)
	assert.Equal(t, reservationdomain.StatusApplied, stored.Status)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, paymentID, *stored.PaymentID)

	// Nothing pending afterwards.
	again, err := f.calculator.ApplyOnPayment(ctx, billingdomain.ApplyRequest{
		UserID:     user.ID,
		PaymentID:  f.node.Generate(),
		OccurredAt: f.clock.Now(),
	})
	require.NoError(t, err)
	assert.False(t, again.Applied)
}

func TestApplyOnPaymentFreePromotionSpansCycles(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 0)
	user := f.seedUser(t, "123-45-67890")
	promo := f.seedPromotion(t, promotiondomain.DiscountFree, 0, 2)
	reservation := f.seedReservation(t, user.ID, promo.ID)

	first, err := f.calculator.ApplyOnPayment(ctx, billingdomain.ApplyRequest{
		UserID:     user.ID,
		PaymentID:  f.node.Generate(),
		OccurredAt: f.clock.Now(),
	})
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, 1, first.UsedMonths)
	assert.False(t, first.LedgerExhausted)

	// Budget not exhausted yet, so the grant stays pending.
	stored, err := f.resRepo.FindByID(ctx, f.db, reservation.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AppliedAt)

	f.clock.Advance(30 * 24 * time.Hour)
	second, err := f.calculator.ApplyOnPayment(ctx, billingdomain.ApplyRequest{
		UserID:     user.ID,
		PaymentID:  f.node.Generate(),
		OccurredAt: f.clock.Now(),
	})
	require.NoError(t, err)
	assert.True(t, second.Applied)
	assert.Equal(t, 2, second.UsedMonths)
	assert.True(t, second.LedgerExhausted)

	stored, err = f.resRepo.FindByID(ctx, f.db, reservation.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AppliedAt)
	assert.Equal(t, reservationdomain.StatusApplied, stored.Status)
}

func TestApplyOnPaymentSkipsLapsedReservation(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 24*time.Hour)
	user := f.seedUser(t, "123-45-67890")
	promo := f.seedPromotion(t, promotiondomain.DiscountPercent, 20, 0)
	f.seedReservation(t, user.ID, promo.ID)

	f.clock.Advance(48 * time.Hour)

	charge, err := f.calculator.ComputeCharge(ctx, user.ID, 10000)
	require.NoError(t, err)
	assert.EqualValues(t, 10000, charge.NextAmount)
	assert.Nil(t, charge.Reservation)

	result, err := f.calculator.ApplyOnPayment(ctx, billingdomain.ApplyRequest{
		UserID:     user.ID,
		PaymentID:  f.node.Generate(),
		OccurredAt: f.clock.Now(),
	})
	require.NoError(t, err)
	assert.False(t, result.Applied)
}

func TestApplyOnPaymentLosesRaceToCancel(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 0)
	user := f.seedUser(t, "123-45-67890")
	promo := f.seedPromotion(t, promotiondomain.DiscountPercent, 20, 0)
	reservation := f.seedReservation(t, user.ID, promo.ID)

	// A cancel lands between loading the reservation and stamping it.
	rows, err := f.resRepo.MarkCancelled(ctx, f.db, reservation.ID, f.clock.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	result, err := f.calculator.ApplyOnPayment(ctx, billingdomain.ApplyRequest{
		UserID:     user.ID,
		PaymentID:  f.node.Generate(),
		OccurredAt: f.clock.Now(),
	})
	require.NoError(t, err)
	assert.False(t, result.Applied)
}
