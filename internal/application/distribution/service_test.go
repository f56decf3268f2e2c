package distribution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tokenshare-backend/internal/application/ledger"
	"tokenshare-backend/internal/domain"
	"tokenshare-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	ledger  *ledger.Memory
	svc     *Service
	project domain.Project
	admin   uuid.UUID
	alice   uuid.UUID
	bob     uuid.UUID
}

// newFixture seeds a sold-out 100-token project held 60/40 (alice's 60 split over two holdings).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, database.OpenTestDB(t))
}

func newFixtureOn(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	f := &fixture{db: db, ledger: ledger.NewMemory(), admin: uuid.New(), alice: uuid.New(), bob: uuid.New()}
	f.project = domain.Project{
		Name:            "Wind farm",
		TotalTokens:     100,
		AvailableTokens: 0,
		TokenPrice:      decimal.NewFromInt(500),
		InitialCapital:  decimal.NewFromInt(50000),
		Status:          domain.ProjectStatusActive,
		AdminID:         f.admin,
	}
	require.NoError(t, db.Create(&f.project).Error)
	require.NoError(t, db.Create(&[]domain.Holding{
		{ProjectID: f.project.ProjectID, UserID: f.alice, Amount: 25, Status: domain.HoldingStatusActive},
		{ProjectID: f.project.ProjectID, UserID: f.alice, Amount: 35, Status: domain.HoldingStatusActive},
		{ProjectID: f.project.ProjectID, UserID: f.bob, Amount: 40, Status: domain.HoldingStatusActive},
	}).Error)
	f.svc = &Service{DB: db, Ledger: f.ledger, LedgerTimeout: time.Second, LeaseGrace: time.Second}
	return f
}

func (f *fixture) distribution(t *testing.T) domain.Distribution {
	t.Helper()
	var d domain.Distribution
	require.NoError(t, f.db.First(&d, "project_id = ?", f.project.ProjectID).Error)
	return d
}

func (f *fixture) projectStatus(t *testing.T) string {
	t.Helper()
	var p domain.Project
	require.NoError(t, f.db.First(&p, "project_id = ?", f.project.ProjectID).Error)
	return p.Status
}

func (f *fixture) creditCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&domain.UserProfitCredit{}).Where("project_id = ?", f.project.ProjectID).Count(&n).Error)
	return n
}

func transient(op string) error {
	return &ledger.Error{Op: op, Err: errors.New("gateway timeout")}
}

func TestDistribute_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("50000"))
	require.NoError(t, err)

	assert.True(t, b.AdminShare.Equal(dec("15000")))
	assert.True(t, b.UserShare.Equal(dec("35000")))
	assert.True(t, b.ProfitPerToken.Equal(dec("350")))
	assert.Equal(t, int64(100), b.TotalUserTokens)
	assert.Equal(t, 2, b.HolderCount)
	assert.Equal(t, domain.ProjectStatusCompleted, b.ProjectStatus)
	assert.NotEmpty(t, b.LedgerHandle)

	d := f.distribution(t)
	assert.Equal(t, domain.DistributionStatusCompleted, d.Status)
	require.NotNil(t, d.LedgerHandle)
	assert.Equal(t, b.LedgerHandle, *d.LedgerHandle)
	assert.NotNil(t, d.CompletedAt)
	assert.Nil(t, d.LeaseUntil)
	assert.Equal(t, domain.ProjectStatusCompleted, f.projectStatus(t))

	var credits []domain.UserProfitCredit
	require.NoError(t, f.db.Where("distribution_id = ?", d.DistributionID).Find(&credits).Error)
	require.Len(t, credits, 2)
	byUser := map[uuid.UUID]domain.UserProfitCredit{}
	for _, c := range credits {
		byUser[c.UserID] = c
	}
	assert.Equal(t, int64(60), byUser[f.alice].TokenAmount)
	assert.True(t, byUser[f.alice].ProfitAmount.Equal(dec("21000")))
	assert.Equal(t, int64(40), byUser[f.bob].TokenAmount)
	assert.True(t, byUser[f.bob].ProfitAmount.Equal(dec("14000")))

	var dividends int64
	require.NoError(t, f.db.Model(&domain.Transaction{}).
		Where("distribution_id = ? AND type = ?", d.DistributionID, domain.TransactionTypeDividend).
		Count(&dividends).Error)
	assert.Equal(t, int64(2), dividends)
	assert.Equal(t, 1, f.ledger.Count("submitDividend"))

	view, err := f.svc.GetDistribution(ctx, f.project.ProjectID)
	require.NoError(t, err)
	assert.Len(t, view.Credits, 2)
}

// On the single-connection sqlite store whole transactions queue, so this
// proves the unique record and the fenced completion, not the row lock.
// distribute_postgres_test.go runs the same race against FOR UPDATE.
func TestDistribute_ConcurrentExactlyOnce(t *testing.T) {
	assertDistributesExactlyOnce(t, newFixture(t))
}

func assertDistributesExactlyOnce(t *testing.T, f *fixture) {
	t.Helper()
	f.ledger.Delay = 20 * time.Millisecond

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Distribute(context.Background(), f.project.ProjectID, f.admin, dec("50000"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyDistributed)
	}
	assert.Equal(t, 1, succeeded)

	var completed int64
	require.NoError(t, f.db.Model(&domain.Distribution{}).
		Where("project_id = ? AND status = ?", f.project.ProjectID, domain.DistributionStatusCompleted).
		Count(&completed).Error)
	assert.Equal(t, int64(1), completed)
	assert.Equal(t, int64(2), f.creditCount(t))
	assert.Equal(t, 1, f.ledger.Count("submitDividend"))
}

func TestDistribute_TransientFailureKeepsPendingForRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	calls := 0
	f.ledger.Fail = func(op string) error {
		if op != "submitDividend" {
			return nil
		}
		calls++
		if calls == 1 {
			return transient(op)
		}
		return nil
	}

	_, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("50000"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	assert.True(t, domain.Retryable(err))

	pending := f.distribution(t)
	assert.Equal(t, domain.DistributionStatusPending, pending.Status)
	assert.Equal(t, 1, pending.Attempt)
	assert.Nil(t, pending.LeaseUntil)
	require.NotNil(t, pending.LastError)
	assert.Contains(t, *pending.LastError, "gateway timeout")
	assert.Equal(t, domain.ProjectStatusActive, f.projectStatus(t))
	assert.Equal(t, int64(0), f.creditCount(t))

	b, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("50000"))
	require.NoError(t, err)
	assert.Equal(t, pending.DistributionID, b.DistributionID)

	done := f.distribution(t)
	assert.Equal(t, 2, done.Attempt)
	assert.Equal(t, domain.DistributionStatusCompleted, done.Status)
	assert.Equal(t, 1, f.ledger.Count("submitDividend"))
}

func TestDistribute_StopsAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.svc.MaxAttempts = 2
	ctx := context.Background()

	down := true
	f.ledger.Fail = func(op string) error {
		if op == "submitDividend" && down {
			return transient(op)
		}
		return nil
	}

	for i := 0; i < 2; i++ {
		_, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("50000"))
		assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	}
	assert.Equal(t, 2, f.distribution(t).Attempt)

	down = false
	_, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("50000"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerRejected)
	assert.False(t, domain.Retryable(err))

	d := f.distribution(t)
	assert.Equal(t, domain.DistributionStatusPending, d.Status)
	assert.Equal(t, 2, d.Attempt)
	assert.Equal(t, 0, f.ledger.Count("submitDividend"))
	assert.Equal(t, domain.ProjectStatusActive, f.projectStatus(t))
	assert.Equal(t, int64(0), f.creditCount(t))
}

func TestDistribute_PermanentRejectionSurfaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Fail = func(op string) error {
		return &ledger.Error{Op: op, StatusCode: 422, Permanent: true, Err: errors.New("malformed record")}
	}

	_, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("50000"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerRejected)
	assert.False(t, domain.Retryable(err))
	assert.Equal(t, domain.KindExternal, domain.KindOf(err))

	d := f.distribution(t)
	assert.True(t, d.LedgerRejected)
	assert.Equal(t, domain.ProjectStatusActive, f.projectStatus(t))

	// A corrected profit supersedes the rejected record.
	f.ledger.Fail = nil
	b, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("40000"))
	require.NoError(t, err)
	assert.NotEqual(t, d.DistributionID, b.DistributionID)
	assert.True(t, b.AdminShare.Equal(dec("12000")))

	var total int64
	require.NoError(t, f.db.Model(&domain.Distribution{}).Where("project_id = ?", f.project.ProjectID).Count(&total).Error)
	assert.Equal(t, int64(1), total)
}

func TestDistribute_PendingWithDifferentProfitIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Fail = func(op string) error { return transient(op) }

	_, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("50000"))
	require.ErrorIs(t, err, domain.ErrLedgerUnavailable)

	f.ledger.Fail = nil
	_, err = f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("60000"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPendingMismatch)
	assert.Equal(t, domain.KindPrecondition, domain.KindOf(err))
	assert.Contains(t, err.Error(), "50000")
}

func TestDistribute_LiveLeaseBlocksCompetitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lease := time.Now().UTC().Add(time.Minute)
	d := domain.Distribution{
		ProjectID:      f.project.ProjectID,
		AdminID:        f.admin,
		TotalProfit:    dec("50000"),
		AdminShare:     dec("15000"),
		UserShare:      dec("35000"),
		ProfitPerToken: dec("350"),
		Status:         domain.DistributionStatusPending,
		Attempt:        1,
		LeaseUntil:     &lease,
	}
	require.NoError(t, f.db.Create(&d).Error)

	_, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("50000"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyDistributed)
	assert.ErrorIs(t, err, domain.ErrDistributionInProgress)
	assert.True(t, domain.Retryable(err))
	assert.Equal(t, 0, f.ledger.Count("submitDividend"))
}

func TestDistribute_FencedOutAttemptDoesNotCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// While our ledger call is in flight, a competitor takes over the record.
	f.ledger.Fail = func(op string) error {
		if op == "submitDividend" {
			require.NoError(t, f.db.Model(&domain.Distribution{}).
				Where("project_id = ?", f.project.ProjectID).
				Update("attempt", gorm.Expr("attempt + 1")).Error)
		}
		return nil
	}

	_, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("50000"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyDistributed)

	d := f.distribution(t)
	assert.Equal(t, domain.DistributionStatusPending, d.Status)
	assert.Equal(t, 2, d.Attempt)
	assert.Equal(t, domain.ProjectStatusActive, f.projectStatus(t))
	assert.Equal(t, int64(0), f.creditCount(t))
}

func TestDistribute_FailedCreditWriteLeavesOldState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const hook = "test:fail_profit_credits"
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register(hook, func(tx *gorm.DB) {
		if tx.Statement.Table == "UserProfitCredits" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("50000"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	d := f.distribution(t)
	assert.Equal(t, domain.DistributionStatusPending, d.Status)
	assert.Nil(t, d.LedgerHandle)
	assert.Nil(t, d.LeaseUntil)
	assert.Equal(t, domain.ProjectStatusActive, f.projectStatus(t))
	assert.Equal(t, int64(0), f.creditCount(t))

	var dividends int64
	require.NoError(t, f.db.Model(&domain.Transaction{}).Where("type = ?", domain.TransactionTypeDividend).Count(&dividends).Error)
	assert.Equal(t, int64(0), dividends)

	require.NoError(t, f.db.Callback().Create().Remove(hook))
	b, err := f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("50000"))
	require.NoError(t, err)
	assert.Equal(t, d.DistributionID, b.DistributionID)
	assert.Equal(t, int64(2), f.creditCount(t))
	// The resubmission hit the same idempotency key.
	assert.Equal(t, 1, f.ledger.Count("submitDividend"))
}

func TestDistribute_Preconditions(t *testing.T) {
	t.Run("unknown project", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Distribute(context.Background(), uuid.New(), f.admin, dec("10"))
		assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	})

	t.Run("not the owning admin", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Distribute(context.Background(), f.project.ProjectID, uuid.New(), dec("10"))
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("invalid profit", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Distribute(context.Background(), f.project.ProjectID, f.admin, dec("0"))
		assert.ErrorIs(t, err, domain.ErrInvalidProfit)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})

	t.Run("not sold out", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.db.Model(&domain.Project{}).Where("project_id = ?", f.project.ProjectID).
			Update("available_tokens", 7).Error)
		_, err := f.svc.Distribute(context.Background(), f.project.ProjectID, f.admin, dec("10"))
		require.Error(t, err)
		var nr *domain.NotReadyError
		require.True(t, errors.As(err, &nr))
		assert.Equal(t, domain.ReasonNotSoldOut, nr.Reason)
		assert.Contains(t, err.Error(), "7/100 tokens remaining")
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.db.Model(&domain.Project{}).Where("project_id = ?", f.project.ProjectID).
			Update("status", domain.ProjectStatusCancelled).Error)
		_, err := f.svc.Distribute(context.Background(), f.project.ProjectID, f.admin, dec("10"))
		var nr *domain.NotReadyError
		require.True(t, errors.As(err, &nr))
		assert.Equal(t, domain.ReasonCancelled, nr.Reason)
	})

	t.Run("already completed", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Distribute(context.Background(), f.project.ProjectID, f.admin, dec("10"))
		require.NoError(t, err)
		_, err = f.svc.Distribute(context.Background(), f.project.ProjectID, f.admin, dec("10"))
		assert.ErrorIs(t, err, domain.ErrAlreadyDistributed)
	})

	t.Run("no mutation on failure", func(t *testing.T) {
		f := newFixture(t)
		_, _ = f.svc.Distribute(context.Background(), f.project.ProjectID, uuid.New(), dec("10"))
		var n int64
		require.NoError(t, f.db.Model(&domain.Distribution{}).Count(&n).Error)
		assert.Equal(t, int64(0), n)
	})
}

func TestGetDistribution_ReportsMissingCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetDistribution(ctx, f.project.ProjectID)
	assert.ErrorIs(t, err, domain.ErrDistributionNotFound)

	handle := "0xdead"
	now := time.Now().UTC()
	require.NoError(t, f.db.Create(&domain.Distribution{
		ProjectID:      f.project.ProjectID,
		AdminID:        f.admin,
		TotalProfit:    dec("10"),
		AdminShare:     dec("3"),
		UserShare:      dec("7"),
		ProfitPerToken: dec("0.07"),
		Status:         domain.DistributionStatusCompleted,
		LedgerHandle:   &handle,
		CompletedAt:    &now,
	}).Error)

	_, err = f.svc.GetDistribution(ctx, f.project.ProjectID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConsistencyViolation)
	assert.Equal(t, domain.KindConsistency, domain.KindOf(err))

	// Distribute must not paper over it either.
	_, err = f.svc.Distribute(ctx, f.project.ProjectID, f.admin, dec("10"))
	assert.ErrorIs(t, err, domain.ErrConsistencyViolation)
	assert.Equal(t, domain.DistributionStatusCompleted, f.distribution(t).Status)
}
