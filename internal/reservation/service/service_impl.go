package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/internal/clock"
	"github.com/pillstack/backoffice/internal/config"
	"github.com/pillstack/backoffice/internal/observability/metrics"
	paymentdomain "github.com/pillstack/backoffice/internal/payment/domain"
	catalogrepo "github.com/pillstack/backoffice/internal/promotion/catalog/repository"
	promotiondomain "github.com/pillstack/backoffice/internal/promotion/domain"
	"github.com/pillstack/backoffice/internal/promotion/eligibility"
	"github.com/pillstack/backoffice/internal/reservation/domain"
	subscriptiondomain "github.com/pillstack/backoffice/internal/subscription/domain"
	usagedomain "github.com/pillstack/backoffice/internal/usagehistory/domain"
	userdomain "github.com/pillstack/backoffice/internal/user/domain"
	"github.com/pillstack/backoffice/pkg/db"
	"github.com/pillstack/backoffice/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Clock            clock.Clock
	Cfg              config.Config
	GenID            *snowflake.Node
	Repo             domain.Repository
	UserRepo         userdomain.Repository
	PaymentRepo      paymentdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	PromotionRepo    catalogrepo.Repository
	Catalog          promotiondomain.Catalog
	Ledger           usagedomain.Ledger
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	clock            clock.Clock
	batchSize        int
	genID            *snowflake.Node
	repo             domain.Repository
	userRepo         userdomain.Repository
	paymentRepo      paymentdomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	promotionRepo    catalogrepo.Repository
	catalog          promotiondomain.Catalog
	ledger           usagedomain.Ledger
}

func New(p Params) domain.AssignmentService {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("reservation.assignment"),
		clock:            p.Clock,
		batchSize:        p.Cfg.AssignBatchSize,
		genID:            p.GenID,
		repo:             p.Repo,
		userRepo:         p.UserRepo,
		paymentRepo:      p.PaymentRepo,
		subscriptionRepo: p.SubscriptionRepo,
		promotionRepo:    p.PromotionRepo,
		catalog:          p.Catalog,
		ledger:           p.Ledger,
	}
}

// BulkAssign reserves a promotion for every eligible candidate. One
// candidate's failure never aborts the batch: lookup failures and
// ineligibility become per-candidate skip reasons, and a uniqueness
// conflict on insert counts as already reserved. Zero eligible candidates
// is a successful no-op.
func (s *Service) BulkAssign(ctx context.Context, promotionID snowflake.ID, target domain.Target, memo string) (domain.AssignResult, error) {
	promo, err := s.loadAssignablePromotion(ctx, promotionID)
	if err != nil {
		return domain.AssignResult{}, err
	}

	candidates, skipped, err := s.resolveCandidates(ctx, target)
	if err != nil {
		return domain.AssignResult{}, err
	}

	eligible := make([]*userdomain.User, 0, len(candidates))
	for _, user := range candidates {
		reason, err := s.evaluate(ctx, promo, user)
		if err != nil {
			s.log.Warn("candidate lookup failed, skipping",
				zap.String("user_id", user.ID.String()),
				zap.Error(err),
			)
			skipped = append(skipped, domain.SkippedCandidate{UserID: user.ID, Reason: domain.SkipLookupFailed})
			continue
		}
		if reason != "" {
			skipped = append(skipped, domain.SkippedCandidate{UserID: user.ID, Reason: reason})
			continue
		}
		eligible = append(eligible, user)
	}

	// Known duplicates are reported without attempting the insert; the
	// unique (user_id, promotion_id) constraint still backstops races.
	eligible, already, err := s.filterExisting(ctx, promo.ID, eligible)
	if err != nil {
		return domain.AssignResult{}, err
	}
	skipped = append(skipped, already...)

	now := s.clock.Now()
	assigned := 0
	for start := 0; start < len(eligible); start += s.effectiveBatchSize() {
		end := start + s.effectiveBatchSize()
		if end > len(eligible) {
			end = len(eligible)
		}
		for _, user := range eligible[start:end] {
			reservation := &domain.Reservation{
				ID:          s.genID.Generate(),
				UserID:      user.ID,
				PromotionID: promo.ID,
				Source:      domain.SourceAdminAssigned,
				Status:      domain.StatusReserved,
				Memo:        memo,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.repo.Insert(ctx, s.db, reservation); err != nil {
				if db.IsDuplicateKeyErr(err) {
					skipped = append(skipped, domain.SkippedCandidate{UserID: user.ID, Reason: domain.SkipAlreadyReserved})
					continue
				}
				s.log.Warn("reservation insert failed, skipping",
					zap.String("user_id", user.ID.String()),
					zap.Error(err),
				)
				skipped = append(skipped, domain.SkippedCandidate{UserID: user.ID, Reason: domain.SkipLookupFailed})
				continue
			}
			assigned++
		}
	}

	metrics.AssignmentOutcomes.WithLabelValues("assigned").Add(float64(assigned))
	for _, skip := range skipped {
		metrics.AssignmentOutcomes.WithLabelValues(skip.Reason).Inc()
	}

	result := domain.AssignResult{
		Assigned: assigned,
		Skipped:  skipped,
		Message:  fmt.Sprintf("promotion %s: %d assigned, %d skipped", promo.Code, assigned, len(skipped)),
	}
	s.log.Info("bulk assignment finished",
		zap.String("promotion_code", promo.Code),
		zap.Int("assigned", assigned),
		zap.Int("skipped", len(skipped)),
	)
	return result, nil
}

// SingleAssign runs the same eligibility checks as BulkAssign but reports
// the specific rejection as a typed error.
func (s *Service) SingleAssign(ctx context.Context, promotionID, userID snowflake.ID, memo string) (*domain.Reservation, error) {
	if userID == 0 {
		return nil, domain.ErrEmptyTarget
	}
	promo, err := s.loadAssignablePromotion(ctx, promotionID)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.IsDeleted {
		return nil, userdomain.ErrNotFound
	}

	reason, err := s.evaluate(ctx, promo, user)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return nil, rejectionError(reason)
	}

	return s.insertOne(ctx, s.db, promo, user.ID, domain.SourceAdminAssigned, domain.StatusReserved, memo)
}

// RedeemReferral validates the code and the subscriber's eligibility, then
// consumes one code use and creates the grant in a single transaction. The
// reservation is created in state selected because the subscriber actively
// chose it.
func (s *Service) RedeemReferral(ctx context.Context, code string, userID snowflake.ID) (*domain.Reservation, error) {
	if userID == 0 {
		return nil, domain.ErrEmptyTarget
	}

	promo, err := s.catalog.Peek(ctx, code)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.IsDeleted {
		return nil, userdomain.ErrNotFound
	}

	reason, err := s.evaluate(ctx, promo, user)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return nil, rejectionError(reason)
	}

	var reservation *domain.Reservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.promotionRepo.ConsumeReferral(ctx, tx, code, s.clock.Now())
		if err != nil {
			return err
		}
		if rows == 0 {
			return promotiondomain.ErrCodeExhausted
		}
		reservation, err = s.insertOne(ctx, tx, promo, user.ID, domain.SourceReferral, domain.StatusSelected, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.AssignmentOutcomes.WithLabelValues("assigned").Inc()
	return reservation, nil
}

// CancelReservation cancels a pending grant. The update is conditional on
// applied_at being null so a racing apply cannot be clobbered; whichever
// write commits first wins and the loser fails cleanly.
func (s *Service) CancelReservation(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return domain.ErrNotFound
	}

	rows, err := s.repo.MarkCancelled(ctx, s.db, id, s.clock.Now())
	if err != nil {
		return err
	}
	if rows > 0 {
		s.log.Info("reservation cancelled", zap.String("reservation_id", id.String()))
		return nil
	}

	reservation, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	switch {
	case reservation == nil:
		return domain.ErrNotFound
	case reservation.Applied():
		return domain.ErrAlreadyApplied
	case reservation.Status == domain.StatusCancelled:
		return nil // already cancelled; cancelling twice is not an error
	default:
		return domain.ErrNotFound
	}
}

func (s *Service) ListCandidates(ctx context.Context, req domain.ListCandidatesRequest) ([]domain.Candidate, error) {
	users, err := s.userRepo.List(ctx, s.db, userdomain.ListUserFilter{
		BusinessNumber: req.BusinessNumber,
		PharmacyName:   req.PharmacyName,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(users))
	for _, user := range users {
		if user == nil {
			continue
		}
		snapshot, err := s.snapshot(ctx, user)
		if err != nil {
			s.log.Warn("candidate snapshot failed",
				zap.String("user_id", user.ID.String()),
				zap.Error(err),
			)
			continue
		}
		pending, err := s.repo.HasPending(ctx, s.db, user.ID)
		if err != nil {
			s.log.Warn("pending lookup failed",
				zap.String("user_id", user.ID.String()),
				zap.Error(err),
			)
			continue
		}

		candidate := domain.Candidate{
			UserID:              user.ID,
			Email:               user.Email,
			PharmacyName:        user.PharmacyName,
			PharmacistName:      user.PharmacistName,
			BusinessNumber:      user.BusinessNumber,
			IsFirstPayment:      eligibility.Classify(snapshot).IsFirstPayment,
			HasPendingPromotion: pending,
		}
		if latest, err := s.paymentRepo.FindLatestSuccessByUser(ctx, s.db, user.ID); err == nil && latest != nil {
			candidate.LastPaymentAt = latest.ApprovedAt
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (s *Service) ListPending(ctx context.Context) ([]domain.PendingRow, error) {
	return s.repo.ListPending(ctx, s.db)
}

func (s *Service) ListAppliedHistory(ctx context.Context, req domain.ListAppliedRequest) (domain.AppliedHistoryResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 250 {
		pageSize = 250
	}

	var cursor *pagination.Cursor
	if req.PageToken != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.AppliedHistoryResponse{}, err
		}
		cursor = decoded
	}

	rows, err := s.repo.ListApplied(ctx, s.db, cursor, int(pageSize))
	if err != nil {
		return domain.AppliedHistoryResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(rows, pageSize, func(row *domain.AppliedRow) string {
		appliedAt := ""
		if row.AppliedAt != nil {
			appliedAt = row.AppliedAt.Format(time.RFC3339Nano)
		}
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        row.ID.String(),
			CreatedAt: appliedAt,
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(rows) > int(pageSize) {
		rows = rows[:pageSize]
	}

	return domain.AppliedHistoryResponse{Items: rows, PageInfo: pageInfo}, nil
}

func (s *Service) loadAssignablePromotion(ctx context.Context, promotionID snowflake.ID) (promotiondomain.Promotion, error) {
	if promotionID == 0 {
		return promotiondomain.Promotion{}, domain.ErrMissingPromotion
	}
	promo, err := s.promotionRepo.FindByID(ctx, s.db, promotionID)
	if err != nil {
		return promotiondomain.Promotion{}, err
	}
	if promo == nil {
		return promotiondomain.Promotion{}, promotiondomain.ErrNotFound
	}
	if !promo.Active || !promo.WithinWindow(s.clock.Now()) {
		return promotiondomain.Promotion{}, promotiondomain.ErrInactive
	}
	return *promo, nil
}

func (s *Service) resolveCandidates(ctx context.Context, target domain.Target) ([]*userdomain.User, []domain.SkippedCandidate, error) {
	if target.All {
		users, err := s.userRepo.List(ctx, s.db, userdomain.ListUserFilter{})
		return users, nil, err
	}
	if len(target.UserIDs) == 0 {
		return nil, nil, domain.ErrEmptyTarget
	}

	users, err := s.userRepo.FindByIDs(ctx, s.db, target.UserIDs)
	if err != nil {
		return nil, nil, err
	}

	found := make(map[snowflake.ID]bool, len(users))
	for _, user := range users {
		found[user.ID] = true
	}
	var skipped []domain.SkippedCandidate
	for _, id := range target.UserIDs {
		if !found[id] {
			skipped = append(skipped, domain.SkippedCandidate{UserID: id, Reason: domain.SkipUserNotFound})
		}
	}
	return users, skipped, nil
}

// evaluate returns a skip reason ("" means eligible) or a lookup error.
// Ineligibility is a result, not an error.
func (s *Service) evaluate(ctx context.Context, promo promotiondomain.Promotion, user *userdomain.User) (string, error) {
	if user.IsDeleted {
		return domain.SkipUserDeleted, nil
	}

	exhausted, err := s.ledger.IsExhausted(ctx, user.BusinessNumber, promo.Code)
	if err != nil {
		return "", err
	}
	if exhausted {
		return domain.SkipBusinessExhausted, nil
	}

	if !promo.FirstPaymentOnly {
		return "", nil
	}

	snapshot, err := s.snapshot(ctx, user)
	if err != nil {
		return "", err
	}
	if eligibility.Classify(snapshot).IsFirstPayment {
		return "", nil
	}

	// Report the dominant reason for the admin summary.
	switch {
	case snapshot.PaymentCount > 0:
		return domain.SkipHasPaymentHistory, nil
	case snapshot.SubscriptionStatus == string(subscriptiondomain.StatusActive):
		return domain.SkipActiveSubscription, nil
	default:
		return domain.SkipReturningCustomer, nil
	}
}

func (s *Service) snapshot(ctx context.Context, user *userdomain.User) (eligibility.Snapshot, error) {
	count, err := s.paymentRepo.CountSuccessfulByUser(ctx, s.db, user.ID)
	if err != nil {
		return eligibility.Snapshot{}, err
	}

	status := ""
	sub, err := s.subscriptionRepo.FindActiveByUserID(ctx, s.db, user.ID)
	if err != nil {
		return eligibility.Snapshot{}, err
	}
	if sub != nil {
		status = string(sub.Status)
	}

	return eligibility.Snapshot{
		PaymentCount:        int(count),
		SubscriptionStatus:  status,
		IsReturningCustomer: user.IsReturningCustomer,
	}, nil
}

func (s *Service) filterExisting(ctx context.Context, promotionID snowflake.ID, users []*userdomain.User) ([]*userdomain.User, []domain.SkippedCandidate, error) {
	if len(users) == 0 {
		return users, nil, nil
	}
	ids := make([]snowflake.ID, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.ID)
	}

	existing, err := s.repo.FindExistingUserIDs(ctx, s.db, promotionID, ids)
	if err != nil {
		return nil, nil, err
	}
	if len(existing) == 0 {
		return users, nil, nil
	}

	reserved := make(map[snowflake.ID]bool, len(existing))
	for _, id := range existing {
		reserved[id] = true
	}
	var (
		remaining []*userdomain.User
		skipped   []domain.SkippedCandidate
	)
	for _, user := range users {
		if reserved[user.ID] {
			skipped = append(skipped, domain.SkippedCandidate{UserID: user.ID, Reason: domain.SkipAlreadyReserved})
			continue
		}
		remaining = append(remaining, user)
	}
	return remaining, skipped, nil
}

func (s *Service) insertOne(ctx context.Context, conn *gorm.DB, promo promotiondomain.Promotion, userID snowflake.ID, source domain.Source, status domain.Status, memo string) (*domain.Reservation, error) {
	now := s.clock.Now()
	reservation := &domain.Reservation{
		ID:          s.genID.Generate(),
		UserID:      userID,
		PromotionID: promo.ID,
		Source:      source,
		Status:      status,
		Memo:        memo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, conn, reservation); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyReserved
		}
		return nil, err
	}
	return reservation, nil
}

func (s *Service) effectiveBatchSize() int {
	if s.batchSize > 0 {
		return s.batchSize
	}
	return 200
}

func rejectionError(reason string) error {
	switch reason {
	case domain.SkipBusinessExhausted:
		return domain.ErrBusinessExhausted
	case domain.SkipAlreadyReserved:
		return domain.ErrAlreadyReserved
	default:
		return fmt.Errorf("%w: %s", domain.ErrNotEligible, reason)
	}
}
