package postgres

import (
	"context"
	"fmt"
)

// schemaDDL bootstraps the riskcore tables. Statements are idempotent so
// applying on every startup is safe.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS price_bars (
	symbol       TEXT        NOT NULL,
	date         DATE        NOT NULL,
	open         DOUBLE PRECISION NOT NULL,
	high         DOUBLE PRECISION NOT NULL,
	low          DOUBLE PRECISION NOT NULL,
	close        DOUBLE PRECISION NOT NULL,
	volume       BIGINT      NOT NULL DEFAULT 0,
	data_source  TEXT        NOT NULL DEFAULT '',
	PRIMARY KEY (symbol, date)
);

CREATE TABLE IF NOT EXISTS symbol_metrics (
	symbol             TEXT NOT NULL,
	date               DATE NOT NULL,
	close              DOUBLE PRECISION NOT NULL,
	return_1d          DOUBLE PRECISION,
	return_mtd         DOUBLE PRECISION,
	return_ytd         DOUBLE PRECISION,
	return_1m          DOUBLE PRECISION,
	return_3m          DOUBLE PRECISION,
	return_1y          DOUBLE PRECISION,
	data_quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (symbol, date)
);

CREATE TABLE IF NOT EXISTS factor_exposures (
	subject_type     TEXT NOT NULL,
	subject          TEXT NOT NULL,
	factor           TEXT NOT NULL,
	date             DATE NOT NULL,
	window_days      INTEGER NOT NULL,
	weighting_scheme TEXT NOT NULL DEFAULT '',
	beta             DOUBLE PRECISION NOT NULL,
	dollar_exposure  DOUBLE PRECISION NOT NULL DEFAULT 0,
	r_squared        DOUBLE PRECISION NOT NULL DEFAULT 0,
	window_start     DATE,
	window_end       DATE,
	observations     INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (subject_type, subject, factor, date, window_days, weighting_scheme)
);
CREATE INDEX IF NOT EXISTS idx_factor_exposures_subject_date
	ON factor_exposures (subject, date);

CREATE TABLE IF NOT EXISTS portfolios (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	seed_equity NUMERIC(20, 4) NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS positions (
	id            TEXT PRIMARY KEY,
	portfolio_id  TEXT NOT NULL REFERENCES portfolios (id) ON DELETE CASCADE,
	symbol        TEXT NOT NULL,
	kind          TEXT NOT NULL,
	quantity      NUMERIC(20, 6) NOT NULL,
	entry_price   NUMERIC(20, 6) NOT NULL DEFAULT 0,
	entry_date    DATE,
	last_price    NUMERIC(20, 6) NOT NULL DEFAULT 0,
	realized_pnl  NUMERIC(20, 4) NOT NULL DEFAULT 0,
	unrealized_pnl NUMERIC(20, 4) NOT NULL DEFAULT 0,
	private       BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_positions_portfolio ON positions (portfolio_id);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	portfolio_id    TEXT NOT NULL,
	date            DATE NOT NULL,
	equity_balance  NUMERIC(20, 4) NOT NULL,
	total_value     NUMERIC(20, 4) NOT NULL,
	daily_pnl       NUMERIC(20, 4) NOT NULL,
	cumulative_pnl  NUMERIC(20, 4) NOT NULL DEFAULT 0,
	long_exposure   NUMERIC(20, 4) NOT NULL DEFAULT 0,
	short_exposure  NUMERIC(20, 4) NOT NULL DEFAULT 0,
	gross_exposure  NUMERIC(20, 4) NOT NULL DEFAULT 0,
	net_exposure    NUMERIC(20, 4) NOT NULL DEFAULT 0,
	volatility      DOUBLE PRECISION,
	beta            DOUBLE PRECISION,
	anchor_date     DATE,
	anchor_degraded BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (portfolio_id, date)
);

CREATE TABLE IF NOT EXISTS correlation_calculations (
	id            TEXT NOT NULL,
	portfolio_id  TEXT NOT NULL,
	date          DATE NOT NULL,
	available     BOOLEAN NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	duration_days INTEGER NOT NULL DEFAULT 0,
	min_overlap   INTEGER NOT NULL DEFAULT 0,
	pairs_skipped INTEGER NOT NULL DEFAULT 0,
	average_correlation      DOUBLE PRECISION NOT NULL DEFAULT 0,
	effective_position_count DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (portfolio_id, date)
);

CREATE TABLE IF NOT EXISTS pairwise_correlations (
	portfolio_id TEXT NOT NULL,
	date         DATE NOT NULL,
	symbol_a     TEXT NOT NULL,
	symbol_b     TEXT NOT NULL,
	correlation  DOUBLE PRECISION NOT NULL,
	data_points  INTEGER NOT NULL,
	t_statistic  DOUBLE PRECISION NOT NULL,
	p_value      DOUBLE PRECISION NOT NULL,
	significant  BOOLEAN NOT NULL,
	PRIMARY KEY (portfolio_id, date, symbol_a, symbol_b)
);

CREATE TABLE IF NOT EXISTS stress_test_results (
	portfolio_id      TEXT NOT NULL,
	date              DATE NOT NULL,
	scenario          TEXT NOT NULL,
	estimated_pnl     DOUBLE PRECISION NOT NULL,
	estimated_pnl_pct DOUBLE PRECISION NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (portfolio_id, date, scenario)
);

CREATE TABLE IF NOT EXISTS batch_runs (
	id           TEXT PRIMARY KEY,
	job_type     TEXT NOT NULL,
	date         DATE NOT NULL,
	success      BOOLEAN NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_batch_runs_type_date ON batch_runs (job_type, date);
`

// ApplySchema creates the riskcore tables if they do not exist.
func ApplySchema(ctx context.Context, pool *Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
