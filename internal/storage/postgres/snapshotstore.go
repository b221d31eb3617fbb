package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage"
)

// SnapshotStore implements interfaces.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

var _ interfaces.SnapshotStore = (*SnapshotStore)(nil)

const snapshotColumns = `portfolio_id, date, equity_balance::text, total_value::text,
	daily_pnl::text, cumulative_pnl::text, long_exposure::text, short_exposure::text,
	gross_exposure::text, net_exposure::text, volatility, beta,
	COALESCE(anchor_date, '0001-01-01'::date), anchor_degraded, created_at`

// Save upserts one snapshot row. The series is append-only in normal
// operation; the upsert only exists so a retried refresh run for the same
// date converges instead of failing.
func (s *SnapshotStore) Save(ctx context.Context, snap *models.PortfolioSnapshot) error {
	if snap == nil || snap.PortfolioID == "" {
		return storage.ErrInvalidInput
	}

	var anchorDate interface{}
	if !snap.AnchorDate.IsZero() {
		anchorDate = common.Day(snap.AnchorDate)
	}

	query := `
		INSERT INTO portfolio_snapshots (
			portfolio_id, date, equity_balance, total_value, daily_pnl, cumulative_pnl,
			long_exposure, short_exposure, gross_exposure, net_exposure,
			volatility, beta, anchor_date, anchor_degraded
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (portfolio_id, date) DO UPDATE SET
			equity_balance = EXCLUDED.equity_balance,
			total_value = EXCLUDED.total_value,
			daily_pnl = EXCLUDED.daily_pnl,
			cumulative_pnl = EXCLUDED.cumulative_pnl,
			long_exposure = EXCLUDED.long_exposure,
			short_exposure = EXCLUDED.short_exposure,
			gross_exposure = EXCLUDED.gross_exposure,
			net_exposure = EXCLUDED.net_exposure,
			volatility = EXCLUDED.volatility,
			beta = EXCLUDED.beta,
			anchor_date = EXCLUDED.anchor_date,
			anchor_degraded = EXCLUDED.anchor_degraded
	`

	_, err := s.pool.Exec(ctx, query,
		snap.PortfolioID, common.Day(snap.Date),
		snap.EquityBalance.String(), snap.TotalValue.String(),
		snap.DailyPnL.String(), snap.CumulativePnL.String(),
		snap.LongExposure.String(), snap.ShortExposure.String(),
		snap.GrossExposure.String(), snap.NetExposure.String(),
		snap.Volatility, snap.Beta, anchorDate, snap.AnchorDegraded)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func scanSnapshot(scan func(...interface{}) error) (*models.PortfolioSnapshot, error) {
	var snap models.PortfolioSnapshot
	var equity, total, daily, cumulative, long, short, gross, net string

	err := scan(&snap.PortfolioID, &snap.Date, &equity, &total, &daily, &cumulative,
		&long, &short, &gross, &net, &snap.Volatility, &snap.Beta,
		&snap.AnchorDate, &snap.AnchorDegraded, &snap.CreatedAt)
	if err != nil {
		return nil, err
	}

	if snap.EquityBalance, err = scanDecimal(equity); err != nil {
		return nil, fmt.Errorf("parse equity balance: %w", err)
	}
	if snap.TotalValue, err = scanDecimal(total); err != nil {
		return nil, fmt.Errorf("parse total value: %w", err)
	}
	if snap.DailyPnL, err = scanDecimal(daily); err != nil {
		return nil, fmt.Errorf("parse daily pnl: %w", err)
	}
	if snap.CumulativePnL, err = scanDecimal(cumulative); err != nil {
		return nil, fmt.Errorf("parse cumulative pnl: %w", err)
	}
	if snap.LongExposure, err = scanDecimal(long); err != nil {
		return nil, fmt.Errorf("parse long exposure: %w", err)
	}
	if snap.ShortExposure, err = scanDecimal(short); err != nil {
		return nil, fmt.Errorf("parse short exposure: %w", err)
	}
	if snap.GrossExposure, err = scanDecimal(gross); err != nil {
		return nil, fmt.Errorf("parse gross exposure: %w", err)
	}
	if snap.NetExposure, err = scanDecimal(net); err != nil {
		return nil, fmt.Errorf("parse net exposure: %w", err)
	}

	if snap.AnchorDate.Year() <= 1 {
		snap.AnchorDate = time.Time{}
	}
	return &snap, nil
}

// Get retrieves one snapshot, or storage.ErrNotFound.
func (s *SnapshotStore) Get(ctx context.Context, portfolioID string, date time.Time) (*models.PortfolioSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM portfolio_snapshots WHERE portfolio_id = $1 AND date = $2`

	row := s.pool.QueryRow(ctx, query, portfolioID, common.Day(date))
	snap, err := scanSnapshot(row.Scan)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// GetLatestBefore returns the most recent snapshot strictly before date.
// The search is unbounded by design: any existing prior snapshot is the
// correct equity anchor, however many days back it is.
func (s *SnapshotStore) GetLatestBefore(ctx context.Context, portfolioID string, date time.Time) (*models.PortfolioSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM portfolio_snapshots
		WHERE portfolio_id = $1 AND date < $2
		ORDER BY date DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, portfolioID, common.Day(date))
	snap, err := scanSnapshot(row.Scan)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot before: %w", err)
	}
	return snap, nil
}
