package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	billingdomain "github.com/pillstack/backoffice/internal/billing/domain"
	"github.com/pillstack/backoffice/internal/clock"
	"github.com/pillstack/backoffice/internal/payment/domain"
	"github.com/pillstack/backoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Repo       domain.Repository
	Calculator billingdomain.Calculator
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	repo       domain.Repository
	calculator billingdomain.Calculator
}

func New(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.ledger"),
		clock:      p.Clock,
		genID:      p.GenID,
		repo:       p.Repo,
		calculator: p.Calculator,
	}
}

type IngestResult struct {
	PaymentID snowflake.ID              `json:"payment_id,omitempty"`
	Amount    int64                     `json:"amount"`
	Duplicate bool                      `json:"duplicate,omitempty"`
	Applied   billingdomain.ApplyResult `json:"applied_promotion"`
}

// IngestSucceeded records a confirmed charge and settles the user's pending
// promotion, if any. Re-delivered events are recognized by provider event id
// and ignored, so the gateway may retry safely.
func (s *Service) IngestSucceeded(ctx context.Context, ev domain.SucceededEvent) (IngestResult, error) {
	if ev.UserID == 0 || ev.BaseAmount < 0 {
		return IngestResult{}, domain.ErrInvalidEvent
	}

	eventID := strings.TrimSpace(ev.ProviderEventID)
	if eventID == "" {
		eventID = uuid.NewString()
	}
	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}

	payload, _ := json.Marshal(ev)
	record := domain.EventRecord{
		ID:              s.genID.Generate(),
		ProviderEventID: eventID,
		EventType:       domain.EventTypePaymentSucceeded,
		UserID:          ev.UserID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	if err := s.repo.InsertEvent(ctx, s.db, &record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.log.Info("duplicate payment event ignored", zap.String("provider_event_id", eventID))
			return IngestResult{Duplicate: true}, nil
		}
		return IngestResult{}, err
	}

	charge, err := s.calculator.ComputeCharge(ctx, ev.UserID, ev.BaseAmount)
	if err != nil {
		return IngestResult{}, err
	}

	payment := domain.Payment{
		ID:         s.genID.Generate(),
		UserID:     ev.UserID,
		Status:     domain.StatusSuccess,
		Amount:     charge.NextAmount,
		BaseAmount: ev.BaseAmount,
		ApprovedAt: &occurredAt,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return IngestResult{}, err
	}

	applied, err := s.calculator.ApplyOnPayment(ctx, billingdomain.ApplyRequest{
		UserID:     ev.UserID,
		PaymentID:  payment.ID,
		OccurredAt: occurredAt,
	})
	if err != nil {
		// The payment stands; the unsettled reservation stays pending and
		// the next cycle will pick it up.
		s.log.Error("promotion apply failed after successful payment",
			zap.String("user_id", ev.UserID.String()),
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		return IngestResult{PaymentID: payment.ID, Amount: payment.Amount}, nil
	}

	if err := s.repo.MarkEventProcessed(ctx, s.db, record.ID); err != nil {
		s.log.Warn("mark event processed failed", zap.Error(err))
	}

	return IngestResult{
		PaymentID: payment.ID,
		Amount:    payment.Amount,
		Applied:   applied,
	}, nil
}

// CountSuccessful exposes the payment count used by eligibility snapshots.
func (s *Service) CountSuccessful(ctx context.Context, userID snowflake.ID) (int64, error) {
	return s.repo.CountSuccessfulByUser(ctx, s.db, userID)
}
