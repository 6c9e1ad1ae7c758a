package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/arbitrage"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects and pings the database.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStorage{db: db, logger: cfg.Logger}, nil
}

// StoreOpportunity inserts a detected opportunity row.
func (p *PostgresStorage) StoreOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error {
	query := `
		INSERT INTO arbitrage_opportunities (
			id, condition_id, market_slug, market_question, arb_type,
			detected_at, buy_yes, buy_no, sell_yes, sell_no,
			long_cost, short_revenue, profit_rate,
			max_orderbook_size, max_balance_size, recommended_size
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`

	_, err := p.db.ExecContext(ctx, query,
		opp.ID,
		opp.Pair.ConditionID,
		opp.Pair.Slug,
		opp.Pair.Question,
		string(opp.Type),
		opp.DetectedAt,
		opp.Prices.BuyYes,
		opp.Prices.BuyNo,
		opp.Prices.SellYes,
		opp.Prices.SellNo,
		opp.Prices.LongCost,
		opp.Prices.ShortRevenue,
		opp.ProfitRate,
		opp.MaxOrderbookSize,
		opp.MaxBalanceSize,
		opp.RecommendedSize,
	)
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}

	p.logger.Debug("opportunity-stored",
		zap.String("opportunity-id", opp.ID),
		zap.String("market-slug", opp.Pair.Slug),
		zap.String("arb-type", string(opp.Type)))
	return nil
}

// StoreExecution inserts an execution-attempt row. Leg details are flattened
// into nullable columns so failed single-leg attempts stay queryable.
func (p *PostgresStorage) StoreExecution(ctx context.Context, result *types.ExecutionResult) error {
	var yesPrice, yesSize, noPrice, noSize sql.NullFloat64
	if result.YesTrade != nil {
		yesPrice = sql.NullFloat64{Float64: result.YesTrade.Price, Valid: true}
		yesSize = sql.NullFloat64{Float64: result.YesTrade.Size, Valid: true}
	}
	if result.NoTrade != nil {
		noPrice = sql.NullFloat64{Float64: result.NoTrade.Price, Valid: true}
		noSize = sql.NullFloat64{Float64: result.NoTrade.Size, Valid: true}
	}

	query := `
		INSERT INTO arbitrage_executions (
			opportunity_id, condition_id, market_slug, arb_type, executed_at,
			yes_price, yes_size, no_price, no_size,
			merged_pairs, split_amount, gas_cost_usd, realized_profit,
			success, failure_kind, error
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`

	_, err := p.db.ExecContext(ctx, query,
		result.OpportunityID,
		result.ConditionID,
		result.MarketSlug,
		result.Type,
		result.ExecutedAt,
		yesPrice,
		yesSize,
		noPrice,
		noSize,
		result.MergedPairs,
		result.SplitAmount,
		result.GasCostUSD,
		result.RealizedProfit,
		result.Success,
		string(result.FailureKind),
		result.Error,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}

	p.logger.Debug("execution-stored",
		zap.String("opportunity-id", result.OpportunityID),
		zap.Bool("success", result.Success),
		zap.Float64("realized-profit", result.RealizedProfit))
	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
