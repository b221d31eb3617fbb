package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage"
)

// PortfolioStore implements interfaces.PortfolioStore using PostgreSQL.
// Positions are owned rows deleted by cascade with their portfolio; the
// storage layer carries the cascade logic, not an ORM relationship graph.
type PortfolioStore struct {
	pool *Pool
}

// NewPortfolioStore creates a new PortfolioStore.
func NewPortfolioStore(pool *Pool) *PortfolioStore {
	return &PortfolioStore{pool: pool}
}

var _ interfaces.PortfolioStore = (*PortfolioStore)(nil)

// scanDecimal parses a NUMERIC column scanned as text.
func scanDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Get retrieves a portfolio with its positions, or storage.ErrNotFound.
func (s *PortfolioStore) Get(ctx context.Context, id string) (*models.Portfolio, error) {
	query := `
		SELECT id, name, seed_equity::text, created_at, updated_at
		FROM portfolios WHERE id = $1
	`

	var p models.Portfolio
	var seedEquity string
	err := s.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &seedEquity, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get portfolio: %w", err)
	}
	if p.SeedEquity, err = scanDecimal(seedEquity); err != nil {
		return nil, fmt.Errorf("parse seed equity: %w", err)
	}

	positions, err := s.getPositions(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Positions = positions
	return &p, nil
}

func (s *PortfolioStore) getPositions(ctx context.Context, portfolioID string) ([]*models.Position, error) {
	query := `
		SELECT id, portfolio_id, symbol, kind, quantity::text, entry_price::text,
			COALESCE(entry_date, '0001-01-01'::date), last_price::text,
			realized_pnl::text, unrealized_pnl::text, private, updated_at
		FROM positions
		WHERE portfolio_id = $1
		ORDER BY symbol ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		var pos models.Position
		var kind, quantity, entryPrice, lastPrice, realized, unrealized string
		err := rows.Scan(&pos.ID, &pos.PortfolioID, &pos.Symbol, &kind, &quantity, &entryPrice,
			&pos.EntryDate, &lastPrice, &realized, &unrealized, &pos.Private, &pos.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		pos.Kind = models.InstrumentKind(kind)
		if pos.Quantity, err = scanDecimal(quantity); err != nil {
			return nil, fmt.Errorf("parse quantity: %w", err)
		}
		if pos.EntryPrice, err = scanDecimal(entryPrice); err != nil {
			return nil, fmt.Errorf("parse entry price: %w", err)
		}
		if pos.LastPrice, err = scanDecimal(lastPrice); err != nil {
			return nil, fmt.Errorf("parse last price: %w", err)
		}
		if pos.RealizedPnL, err = scanDecimal(realized); err != nil {
			return nil, fmt.Errorf("parse realized pnl: %w", err)
		}
		if pos.UnrealizedPnL, err = scanDecimal(unrealized); err != nil {
			return nil, fmt.Errorf("parse unrealized pnl: %w", err)
		}
		positions = append(positions, &pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return positions, nil
}

// List returns all portfolios with positions, ordered by ID.
func (s *PortfolioStore) List(ctx context.Context) ([]*models.Portfolio, error) {
	query := `SELECT id FROM portfolios ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate portfolio ids: %w", err)
	}

	portfolios := make([]*models.Portfolio, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, nil
}

// Save upserts a portfolio and replaces its position rows in one transaction.
func (s *PortfolioStore) Save(ctx context.Context, p *models.Portfolio) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save portfolio: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO portfolios (id, name, seed_equity, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			seed_equity = EXCLUDED.seed_equity,
			updated_at = now()
	`, p.ID, p.Name, p.SeedEquity.String())
	if err != nil {
		return fmt.Errorf("upsert portfolio: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE portfolio_id = $1`, p.ID); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}

	for _, pos := range p.Positions {
		var entryDate interface{}
		if !pos.EntryDate.IsZero() {
			entryDate = pos.EntryDate
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO positions (
				id, portfolio_id, symbol, kind, quantity, entry_price, entry_date,
				last_price, realized_pnl, unrealized_pnl, private, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		`, pos.ID, p.ID, pos.Symbol, string(pos.Kind),
			pos.Quantity.String(), pos.EntryPrice.String(), entryDate,
			pos.LastPrice.String(), pos.RealizedPnL.String(), pos.UnrealizedPnL.String(), pos.Private)
		if err != nil {
			return fmt.Errorf("insert position %s: %w", pos.Symbol, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save portfolio: %w", err)
	}
	return nil
}

// Delete removes a portfolio; its positions cascade.
func (s *PortfolioStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete portfolio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
