package service

import (
	"context"
	"errors"
	"strings"

	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	"github.com/smallbiznis/loyalty/internal/clock"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/loyalty/internal/observability/metrics"
	"github.com/smallbiznis/loyalty/internal/pendingcredit/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	Ledger     ledgerdomain.Service
	Balance    balancedomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	ledger     ledgerdomain.Service
	balance    balancedomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("pendingcredit.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		ledger:     p.Ledger,
		balance:    p.Balance,
		obsMetrics: p.ObsMetrics,
	}
}

// Enqueue records points for an order until its owner can be credited.
// Re-enqueueing the same order replaces the previous row.
func (s *Service) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.PendingCredit, error) {
	orderID, err := ledgerdomain.NormalizeOrderID(req.OrderID)
	if err != nil {
		return nil, err
	}
	if req.Points < 0 {
		return nil, domain.ErrNegativePoints
	}

	credit := domain.PendingCredit{OrderID: orderID, Points: req.Points}
	if strings.TrimSpace(req.UserID) != "" {
		userID, err := ledgerdomain.NormalizeUserID(req.UserID)
		if err != nil {
			return nil, err
		}
		credit.UserID = &userID
	}
	if ref := normalizeGuestRef(req.GuestRef); ref != "" {
		if len(ref) > 255 {
			return nil, domain.ErrInvalidGuestRef
		}
		credit.GuestRef = &ref
	}
	if credit.UserID == nil && credit.GuestRef == nil {
		return nil, domain.ErrMissingOwner
	}
	if req.Points == 0 {
		return nil, domain.ErrNothingToCredit
	}

	now := s.clock.Now().UTC()
	credit.CreatedAt = now
	credit.UpdatedAt = now
	if err := s.repo.Upsert(ctx, s.db, &credit); err != nil {
		return nil, db.Classify("pendingcredit.enqueue", err)
	}

	s.log.Info("order credit deferred",
		zap.String("order_id", orderID),
		zap.Bool("guest", credit.UserID == nil),
		zap.Int64("points", credit.Points),
	)
	s.obsMetrics.RecordCredit(ctx, "deferred", "enqueue")
	return &credit, nil
}

// Apply credits an order to a known user exactly once.
func (s *Service) Apply(ctx context.Context, credit domain.Credit) (domain.ApplyOutcome, error) {
	userID, err := ledgerdomain.NormalizeUserID(credit.UserID)
	if err != nil {
		return "", err
	}
	orderID, err := ledgerdomain.NormalizeOrderID(credit.OrderID)
	if err != nil {
		return "", err
	}
	if credit.Points < 0 {
		return "", domain.ErrNegativePoints
	}
	if credit.Points == 0 {
		return domain.OutcomeNoop, nil
	}
	credit.UserID = userID
	credit.OrderID = orderID

	var outcome domain.ApplyOutcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockOwner(ctx, tx, userID); err != nil {
			return err
		}
		outcome, err = s.applyTx(ctx, tx, credit)
		if err != nil {
			return err
		}
		// a deferred copy of the same order is now redundant
		return s.repo.Delete(ctx, tx, orderID)
	})
	if err != nil {
		return "", txErr("pendingcredit.apply", err)
	}

	s.recordOutcome(ctx, outcome, "direct", credit.Points)
	return outcome, nil
}

// Drain applies every pending credit of the user, one transaction per row.
// It is safe to call repeatedly and concurrently.
func (s *Service) Drain(ctx context.Context, userID string) (domain.DrainResult, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return domain.DrainResult{}, err
	}

	rows, err := s.repo.ListByUser(ctx, s.db, userID, domain.DrainBatchSize)
	if err != nil {
		return domain.DrainResult{}, db.Classify("pendingcredit.drain", err)
	}

	var result domain.DrainResult
	for _, row := range rows {
		if row == nil {
			continue
		}
		var (
			outcome domain.ApplyOutcome
			points  int64
		)
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.lockOwner(ctx, tx, userID); err != nil {
				return err
			}
			current, err := s.repo.FindByOrderID(ctx, tx, row.OrderID)
			if err != nil {
				return err
			}
			if current == nil || current.UserID == nil || *current.UserID != userID {
				outcome = domain.OutcomeSkipped
				return nil
			}
			points = current.Points
			if current.Points > 0 {
				outcome, err = s.applyTx(ctx, tx, domain.Credit{
					OrderID: current.OrderID,
					UserID:  userID,
					Points:  current.Points,
				})
				if err != nil {
					return err
				}
			} else {
				outcome = domain.OutcomeSkipped
			}
			return s.repo.Delete(ctx, tx, current.OrderID)
		})
		if err != nil {
			return result, txErr("pendingcredit.drain", err)
		}

		s.recordOutcome(ctx, outcome, "drain", points)
		if outcome == domain.OutcomeApplied {
			result.Applied++
		} else {
			result.Skipped++
		}
	}

	if result.Applied > 0 || result.Skipped > 0 {
		s.log.Info("pending credits drained",
			zap.Int("applied", result.Applied),
			zap.Int("skipped", result.Skipped),
		)
	}
	return result, nil
}

// BindGuest attaches ownerless rows carrying one of the guest references to
// the user.
func (s *Service) BindGuest(ctx context.Context, userID string, guestRefs []string) (int, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return 0, err
	}

	refs := make([]string, 0, len(guestRefs))
	seen := make(map[string]struct{}, len(guestRefs))
	for _, ref := range guestRefs {
		ref = normalizeGuestRef(ref)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	affected, err := s.repo.BindGuest(ctx, s.db, userID, refs, s.clock.Now().UTC())
	if err != nil {
		return 0, db.Classify("pendingcredit.bind_guest", err)
	}
	return int(affected), nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.PendingCredit, error) {
	userID, err := ledgerdomain.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListByUser(ctx, s.db, userID, domain.DrainBatchSize)
	if err != nil {
		return nil, db.Classify("pendingcredit.list", err)
	}
	out := make([]domain.PendingCredit, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

// lockOwner serializes credit application per user on the balance row.
func (s *Service) lockOwner(ctx context.Context, tx *gorm.DB, userID string) error {
	if err := s.balance.EnsureRecord(ctx, tx, userID); err != nil {
		return err
	}
	_, err := s.balance.Lock(ctx, tx, userID)
	return err
}

// applyTx writes the earn entry unless the order was already credited, then
// moves the cached balance. A cache failure is logged and left for reconcile.
func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, credit domain.Credit) (domain.ApplyOutcome, error) {
	key := ledgerdomain.OrderDedupeKey(credit.OrderID)
	log := s.log.With(zap.String("order_id", credit.OrderID))

	existing, err := s.ledger.FindByDedupeKey(ctx, tx, key)
	if err != nil {
		return "", err
	}
	if existing != nil {
		log.Debug("order already credited")
		return domain.OutcomeSkipped, nil
	}

	description := strings.TrimSpace(credit.Description)
	if description == "" {
		description = "Order " + credit.OrderID
	}

	if err := tx.SavePoint("credit_append").Error; err != nil {
		return "", err
	}
	if _, err := s.ledger.Append(ctx, tx, ledgerdomain.AppendRequest{
		UserID:      credit.UserID,
		PointsDelta: credit.Points,
		Kind:        ledgerdomain.KindEarn,
		Description: description,
		OrderID:     credit.OrderID,
		DedupeKey:   key,
	}); err != nil {
		if errors.Is(err, ledgerdomain.ErrDuplicateEntry) {
			if rbErr := tx.RollbackTo("credit_append").Error; rbErr != nil {
				return "", rbErr
			}
			log.Debug("order credited concurrently")
			return domain.OutcomeSkipped, nil
		}
		return "", err
	}

	if err := tx.SavePoint("credit_balance").Error; err != nil {
		return "", err
	}
	if _, err := s.balance.ApplyDelta(ctx, tx, credit.UserID, credit.Points); err != nil {
		if rbErr := tx.RollbackTo("credit_balance").Error; rbErr != nil {
			return "", rbErr
		}
		log.Warn("balance cache update failed after credit, left for reconcile", zap.Error(err))
	}
	return domain.OutcomeApplied, nil
}

func (s *Service) recordOutcome(ctx context.Context, outcome domain.ApplyOutcome, source string, points int64) {
	s.obsMetrics.RecordCredit(ctx, string(outcome), source)
	if outcome == domain.OutcomeApplied {
		s.obsMetrics.RecordLedgerEntry(ctx, string(ledgerdomain.KindEarn), points)
	}
}

func normalizeGuestRef(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}

func txErr(op string, err error) error {
	switch {
	case errors.Is(err, ledgerdomain.ErrInvalidUserID),
		errors.Is(err, ledgerdomain.ErrInvalidOrderID),
		errors.Is(err, ledgerdomain.ErrInvalidPoints):
		return err
	}
	return db.Classify(op, err)
}
