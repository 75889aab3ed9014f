package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/ysjshop/backend/internal/catalog"
	pkgdb "github.com/ysjshop/backend/pkg/db"
	"github.com/ysjshop/backend/pkg/db/models"
	"github.com/ysjshop/backend/pkg/enums"
	pkgerrors "github.com/ysjshop/backend/pkg/errors"
	"github.com/ysjshop/backend/pkg/logger"
	"github.com/ysjshop/backend/pkg/metrics"
	"github.com/ysjshop/backend/pkg/pagination"
)

// Service is the reservation engine. It is the only writer of stock_ledger
// and stock_logs rows; everything else reads derived snapshots.
type Service interface {
	Initialize(ctx context.Context, input InitializeInput) (*Snapshot, error)
	BatchInitialize(ctx context.Context, inputs []InitializeInput) ([]BatchResult, error)
	Prelock(ctx context.Context, input PrelockInput) (*Snapshot, error)
	Confirm(ctx context.Context, input ConfirmInput) (*Snapshot, error)
	Release(ctx context.Context, input ReleaseInput) (*ReleaseResult, error)
	Adjust(ctx context.Context, input AdjustInput) (*Snapshot, error)
	BatchAdjust(ctx context.Context, inputs []AdjustInput) ([]BatchResult, error)
	GetSnapshot(ctx context.Context, productID uuid.UUID) (*Snapshot, error)
	GetLog(ctx context.Context, productID uuid.UUID, params pagination.Params) (*LogPage, error)
}

// txRunner matches db.Client's transaction helper.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams collects the engine's dependencies. Metrics, Cache and Now
// are optional.
type ServiceParams struct {
	Tx      txRunner
	Ledger  LedgerRepository
	Audit   AuditRepository
	Catalog catalog.ProductReader
	Locks   *LockManager
	Logger  *logger.Logger
	Metrics *metrics.StockMetrics
	Cache   *SnapshotCache
	Now     func() time.Time
}

type service struct {
	tx      txRunner
	ledger  LedgerRepository
	audit   AuditRepository
	catalog catalog.ProductReader
	locks   *LockManager
	logger  *logger.Logger
	metrics *metrics.StockMetrics
	cache   *SnapshotCache
	now     func() time.Time
}

// NewService validates dependencies and builds the reservation engine.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("stock service requires a transaction runner")
	case params.Ledger == nil:
		return nil, fmt.Errorf("stock service requires a ledger repository")
	case params.Audit == nil:
		return nil, fmt.Errorf("stock service requires an audit repository")
	case params.Catalog == nil:
		return nil, fmt.Errorf("stock service requires a product reader")
	case params.Locks == nil:
		return nil, fmt.Errorf("stock service requires a lock manager")
	case params.Logger == nil:
		return nil, fmt.Errorf("stock service requires a logger")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:      params.Tx,
		ledger:  params.Ledger,
		audit:   params.Audit,
		catalog: params.Catalog,
		locks:   params.Locks,
		logger:  params.Logger,
		metrics: params.Metrics,
		cache:   params.Cache,
		now:     now,
	}, nil
}

const (
	opInitialize = "initialize"
	opPrelock    = "prelock"
	opConfirm    = "confirm"
	opRelease    = "release"
	opAdjust     = "adjust"
)

// Initialize seeds a product's ledger row, or resets counters when the row
// already exists. A reset keeps the outstanding prelock and recomputes
// available from the new total.
func (s *service) Initialize(ctx context.Context, input InitializeInput) (*Snapshot, error) {
	ctx = s.logger.WithProductID(ctx, input.ProductID.String())

	if input.TotalQty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "initial stock must not be negative")
	}
	product, err := s.findProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	var after models.StockLedgerEntry
	err = s.runLocked(ctx, opInitialize, input.ProductID, func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		audit := s.audit.WithTx(tx)

		before, err := ledger.FindForUpdate(ctx, input.ProductID)
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			entry := &models.StockLedgerEntry{
				ProductID:    input.ProductID,
				TotalQty:     input.TotalQty,
				AvailableQty: input.TotalQty,
			}
			if err := ledger.Create(ctx, entry); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stock ledger row")
			}
			after = *entry
			return audit.Append(ctx, newLogEntry(models.StockLedgerEntry{ProductID: input.ProductID},
				enums.StockChangeInitialize, input.TotalQty, "", input.AdminID, input.Remark))
		}
		if err != nil {
			return err
		}

		if input.TotalQty < before.PrelockQty {
			return pkgerrors.New(pkgerrors.CodeNegativeStock,
				fmt.Sprintf("new total %d is below outstanding prelock %d", input.TotalQty, before.PrelockQty))
		}

		applied, err := ledger.ApplyDelta(ctx, input.ProductID, Delta{
			Total:     input.TotalQty - before.TotalQty,
			Available: (input.TotalQty - before.PrelockQty) - before.AvailableQty,
		})
		if err != nil {
			return err
		}
		after = applied.After
		return audit.Append(ctx, newLogEntry(applied.Before,
			enums.StockChangeInitialize, input.TotalQty-before.TotalQty, "", input.AdminID, input.Remark))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "stock initialized")
	return s.snapshotOf(after, product), nil
}

// BatchInitialize applies each initialization independently and reports
// per-product outcomes alongside the combined error.
func (s *service) BatchInitialize(ctx context.Context, inputs []InitializeInput) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(inputs))
	var errs []error
	for _, input := range inputs {
		snapshot, err := s.Initialize(ctx, input)
		results = append(results, BatchResult{ProductID: input.ProductID, Snapshot: snapshot, Err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("product %s: %w", input.ProductID, err))
		}
	}
	return results, multierr.Combine(errs...)
}

// Prelock reserves stock for an unpaid order: available shrinks, prelock
// grows, total is untouched.
func (s *service) Prelock(ctx context.Context, input PrelockInput) (*Snapshot, error) {
	ctx = s.logger.WithProductID(ctx, input.ProductID.String())
	ctx = s.logger.WithOrderID(ctx, input.OrderID)

	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "prelock quantity must be positive")
	}
	if input.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prelock requires an order id")
	}
	product, err := s.findProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	var after models.StockLedgerEntry
	err = s.runLocked(ctx, opPrelock, input.ProductID, func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		audit := s.audit.WithTx(tx)

		before, err := ledger.FindForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if before.AvailableQty < input.Qty {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("requested %d, available %d", input.Qty, before.AvailableQty)).
				WithDetails(map[string]any{"requested": input.Qty, "available": before.AvailableQty})
		}

		applied, err := ledger.ApplyDelta(ctx, input.ProductID, Delta{Available: -input.Qty, Prelock: input.Qty})
		if err != nil {
			return err
		}
		after = applied.After
		return audit.Append(ctx, newLogEntry(applied.Before,
			enums.StockChangePrelock, -input.Qty, input.OrderID, "", ""))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "stock prelocked")
	return s.snapshotOf(after, product), nil
}

// Confirm finalizes a paid order's reservation: prelock and total both drop.
// Re-confirming the same order is a no-op returning the current snapshot.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*Snapshot, error) {
	ctx = s.logger.WithProductID(ctx, input.ProductID.String())
	ctx = s.logger.WithOrderID(ctx, input.OrderID)

	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "confirm quantity must be positive")
	}
	if input.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirm requires an order id")
	}
	product, err := s.findProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	var after models.StockLedgerEntry
	err = s.runLocked(ctx, opConfirm, input.ProductID, func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		audit := s.audit.WithTx(tx)

		before, err := ledger.FindForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}

		// Dedup must be read under the row lock: checking before the lock
		// leaves a window where two instances both see no confirm entry and
		// both apply the deduction.
		confirmed, err := audit.HasOrderEntry(ctx, input.ProductID, input.OrderID, enums.StockChangeConfirm)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check confirm history")
		}
		if confirmed {
			after = *before
			s.logger.Info(ctx, "confirm already recorded for order, skipping")
			return nil
		}
		if before.PrelockQty < input.Qty {
			s.logger.Warn(ctx, "confirm without matching prelock")
			return pkgerrors.New(pkgerrors.CodeInsufficientPrelock,
				fmt.Sprintf("requested %d, prelocked %d", input.Qty, before.PrelockQty)).
				WithDetails(map[string]any{"requested": input.Qty, "prelocked": before.PrelockQty})
		}

		applied, err := ledger.ApplyDelta(ctx, input.ProductID, Delta{Total: -input.Qty, Prelock: -input.Qty})
		if err != nil {
			return err
		}
		after = applied.After
		return audit.Append(ctx, newLogEntry(applied.Before,
			enums.StockChangeConfirm, -input.Qty, input.OrderID, "", ""))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "stock deduction confirmed")
	return s.snapshotOf(after, product), nil
}

// Release returns prelocked units to the sellable pool. The amount is
// clamped to the outstanding prelock so cancellation paths are safe to
// repeat; a release for an order already confirmed or released is a no-op,
// and a release that moves nothing writes no audit entry.
func (s *service) Release(ctx context.Context, input ReleaseInput) (*ReleaseResult, error) {
	ctx = s.logger.WithProductID(ctx, input.ProductID.String())
	if input.OrderID != "" {
		ctx = s.logger.WithOrderID(ctx, input.OrderID)
	}

	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "release quantity must be positive")
	}
	product, err := s.findProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	var (
		after    models.StockLedgerEntry
		released int
	)
	err = s.runLocked(ctx, opRelease, input.ProductID, func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		audit := s.audit.WithTx(tx)

		before, err := ledger.FindForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}

		// An order whose reservation was already confirmed or released has
		// nothing left to give back; clamping against the pooled prelock
		// here would return another order's units. Read under the row lock.
		if input.OrderID != "" {
			finalized, err := orderFinalized(ctx, audit, input.ProductID, input.OrderID)
			if err != nil {
				return err
			}
			if finalized {
				released = 0
				after = *before
				s.logger.Info(ctx, "reservation already finalized, skipping release")
				return nil
			}
		}

		released = input.Qty
		if before.PrelockQty < released {
			released = before.PrelockQty
		}
		if released == 0 {
			after = *before
			return nil
		}

		applied, err := ledger.ApplyDelta(ctx, input.ProductID, Delta{Available: released, Prelock: -released})
		if err != nil {
			return err
		}
		after = applied.After
		return audit.Append(ctx, newLogEntry(applied.Before,
			enums.StockChangeRelease, released, input.OrderID, "", input.Reason))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "prelocked stock released")
	return &ReleaseResult{
		Requested: input.Qty,
		Released:  released,
		Snapshot:  s.snapshotOf(after, product),
	}, nil
}

// Adjust applies an administrative correction to total and available at once.
func (s *service) Adjust(ctx context.Context, input AdjustInput) (*Snapshot, error) {
	ctx = s.logger.WithProductID(ctx, input.ProductID.String())
	if input.AdminID != "" {
		ctx = s.logger.WithAdminID(ctx, input.AdminID)
	}

	product, err := s.findProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	// A zero delta moves nothing; report the current state without taking
	// the lock or writing an audit entry.
	if input.Delta == 0 {
		entry, err := s.ledger.Find(ctx, input.ProductID)
		if err != nil {
			return nil, err
		}
		return s.snapshotOf(*entry, product), nil
	}

	var after models.StockLedgerEntry
	err = s.runLocked(ctx, opAdjust, input.ProductID, func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		audit := s.audit.WithTx(tx)

		before, err := ledger.FindForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if before.TotalQty+input.Delta < 0 || before.AvailableQty+input.Delta < 0 {
			return pkgerrors.New(pkgerrors.CodeNegativeStock,
				fmt.Sprintf("delta %+d would leave total=%d available=%d",
					input.Delta, before.TotalQty+input.Delta, before.AvailableQty+input.Delta))
		}

		applied, err := ledger.ApplyDelta(ctx, input.ProductID, Delta{Total: input.Delta, Available: input.Delta})
		if err != nil {
			return err
		}
		after = applied.After
		return audit.Append(ctx, newLogEntry(applied.Before,
			enums.StockChangeAdminAdjust, input.Delta, "", input.AdminID, input.Remark))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "stock adjusted")
	return s.snapshotOf(after, product), nil
}

// BatchAdjust applies each adjustment independently and reports per-product
// outcomes alongside the combined error.
func (s *service) BatchAdjust(ctx context.Context, inputs []AdjustInput) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(inputs))
	var errs []error
	for _, input := range inputs {
		snapshot, err := s.Adjust(ctx, input)
		results = append(results, BatchResult{ProductID: input.ProductID, Snapshot: snapshot, Err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("product %s: %w", input.ProductID, err))
		}
	}
	return results, multierr.Combine(errs...)
}

// GetSnapshot reads the derived view without taking the product lock. A
// product with no ledger row yet reports zero counters rather than an error.
func (s *service) GetSnapshot(ctx context.Context, productID uuid.UUID) (*Snapshot, error) {
	if cached := s.cachedSnapshot(ctx, productID); cached != nil {
		return cached, nil
	}

	product, err := s.findProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	entry, err := s.ledger.Find(ctx, productID)
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		entry = &models.StockLedgerEntry{ProductID: productID}
	} else if err != nil {
		return nil, err
	}

	snapshot := s.snapshotOf(*entry, product)
	if s.cache != nil {
		s.cache.SetSnapshot(ctx, snapshot)
	}
	return snapshot, nil
}

// GetLog pages the product's audit trail, newest first.
func (s *service) GetLog(ctx context.Context, productID uuid.UUID, params pagination.Params) (*LogPage, error) {
	exists, err := s.catalog.Exists(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check product exists")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return s.audit.ListByProduct(ctx, productID, params)
}

// runLocked serializes the mutation on the product, runs it in a transaction
// and settles metrics and cache afterwards.
func (s *service) runLocked(ctx context.Context, op string, productID uuid.UUID, fn func(tx *gorm.DB) error) error {
	start := s.now()
	release, err := s.locks.Acquire(ctx, productID)
	s.metrics.ObserveLockWait(op, s.now().Sub(start))
	if err != nil {
		s.metrics.IncFailure(op)
		return err
	}
	defer release()

	if err := s.tx.WithTx(ctx, fn); err != nil {
		s.metrics.IncFailure(op)
		return err
	}
	s.metrics.IncSuccess(op)

	if s.cache != nil {
		s.cache.Invalidate(ctx, productID)
	}
	return nil
}

func (s *service) cachedSnapshot(ctx context.Context, productID uuid.UUID) *Snapshot {
	if s.cache == nil {
		return nil
	}
	snapshot, err := s.cache.GetSnapshot(ctx, productID)
	if err != nil || snapshot == nil {
		return nil
	}
	return snapshot
}

func (s *service) findProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.catalog.FindByID(ctx, id)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) snapshotOf(entry models.StockLedgerEntry, product *models.Product) *Snapshot {
	effective := entry.EffectiveStock()
	return &Snapshot{
		ProductID:      entry.ProductID,
		TotalQty:       entry.TotalQty,
		AvailableQty:   entry.AvailableQty,
		PrelockQty:     entry.PrelockQty,
		EffectiveStock: effective,
		WarningStock:   product.WarningStock,
		Status:         enums.StockStatusFor(effective, product.WarningStock),
	}
}

func orderFinalized(ctx context.Context, audit AuditRepository, productID uuid.UUID, orderID string) (bool, error) {
	for _, changeType := range []enums.StockChangeType{enums.StockChangeConfirm, enums.StockChangeRelease} {
		done, err := audit.HasOrderEntry(ctx, productID, orderID, changeType)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check reservation history")
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}

func newLogEntry(before models.StockLedgerEntry, changeType enums.StockChangeType, amount int, orderID, adminID, remark string) *models.StockLogEntry {
	entry := &models.StockLogEntry{
		ProductID:       before.ProductID,
		ChangeType:      changeType,
		ChangeAmount:    amount,
		BeforeTotal:     before.TotalQty,
		BeforeAvailable: before.AvailableQty,
		BeforePrelock:   before.PrelockQty,
		Remark:          remark,
	}
	if orderID != "" {
		entry.OrderID = &orderID
	}
	if adminID != "" {
		entry.AdminID = &adminID
	}
	return entry
}
