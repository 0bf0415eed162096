package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"tradehook/internal/domain"
	"tradehook/internal/ports"
)

// Repository implements the ports.BotRepository and ports.TradeRepository
// interfaces using SQLite. Monetary values are stored as TEXT in decimal
// string form so they round-trip exactly.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/tradehook.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency; foreign keys on so bot deletion
	// cascades to trades.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS bots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		leverage INTEGER NOT NULL,
		max_margin TEXT NOT NULL,
		max_investment INTEGER NOT NULL,
		secret TEXT NOT NULL,
		status TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bot_id TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
		order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		status TEXT NOT NULL,
		close_price TEXT DEFAULT NULL,
		close_time TIMESTAMP DEFAULT NULL,
		pnl TEXT DEFAULT NULL,
		opened_at TIMESTAMP NOT NULL
	);
	-- The unique index makes the duplicate-order check and the insert one
	-- atomic operation.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_bot_order ON trades (bot_id, order_id);
	CREATE INDEX IF NOT EXISTS idx_trades_bot_opened ON trades (bot_id, opened_at);
	CREATE INDEX IF NOT EXISTS idx_bots_owner ON bots (owner_id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// isUniqueViolation reports whether the error is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// isForeignKeyViolation reports whether the error is a FOREIGN KEY constraint failure.
func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// --- BotRepository Implementation ---

// Create saves a new bot.
func (r *Repository) Create(ctx context.Context, bot *domain.Bot) error {
	const query = `
	INSERT INTO bots (id, name, symbol, leverage, max_margin, max_investment, secret, status, owner_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		bot.ID, bot.Name, bot.Symbol, bot.Leverage, bot.MaxMargin.String(), bot.MaxInvestment,
		bot.Secret, bot.Status, bot.OwnerID, bot.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bot %s: %w", bot.ID, err)
	}
	r.logger.Debug(ctx, "Bot created", map[string]interface{}{"botID": bot.ID, "symbol": bot.Symbol})
	return nil
}

// FindByID retrieves a bot by its identifier.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Bot, error) {
	const query = `
	SELECT id, name, symbol, leverage, max_margin, max_investment, secret, status, owner_id, created_at
	FROM bots
	WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	bot, err := scanBot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query bot by ID %s: %w", id, err)
	}
	return bot, nil
}

// FindByOwner retrieves all bots belonging to a user, newest first.
func (r *Repository) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Bot, error) {
	const query = `
	SELECT id, name, symbol, leverage, max_margin, max_investment, secret, status, owner_id, created_at
	FROM bots
	WHERE owner_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bots for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	bots := make([]*domain.Bot, 0)
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bot during FindByOwner: %w", err)
		}
		bots = append(bots, bot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bot rows: %w", err)
	}
	return bots, nil
}

// Update modifies an existing bot based on its ID.
func (r *Repository) Update(ctx context.Context, bot *domain.Bot) error {
	const query = `
	UPDATE bots
	SET name = ?, symbol = ?, leverage = ?, max_margin = ?, max_investment = ?, secret = ?, status = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		bot.Name, bot.Symbol, bot.Leverage, bot.MaxMargin.String(), bot.MaxInvestment,
		bot.Secret, bot.Status, bot.ID)
	if err != nil {
		return fmt.Errorf("failed to update bot %s: %w: %w", bot.ID, ports.ErrUpdateFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update bot %s: %w", bot.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("bot %s not found for update: %w", bot.ID, ports.ErrNotFound)
	}
	return nil
}

// Delete removes a bot; the foreign key cascade removes its trades.
func (r *Repository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM bots WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete bot %s: %w: %w", id, ports.ErrDeleteFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for delete bot %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("bot %s not found for delete: %w", id, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Bot deleted", map[string]interface{}{"botID": id})
	return nil
}

// --- TradeRepository Implementation ---

// CreateTrade saves a new trade record and returns its assigned ID. The
// unique (bot_id, order_id) index rejects a second record of the same
// exchange order with ErrDuplicateOrder.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (bot_id, order_id, symbol, side, quantity, entry_price, status, close_price, close_time, pnl, opened_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var closePrice, pnl sql.NullString
	var closeTime sql.NullTime
	if trade.IsClosed() {
		closePrice = sql.NullString{String: trade.ClosePrice.String(), Valid: true}
		closeTime = sql.NullTime{Time: trade.CloseTime, Valid: true}
		pnl = sql.NullString{String: trade.PNL.String(), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		trade.BotID, trade.OrderID, trade.Symbol, trade.Side, trade.Quantity.String(),
		trade.EntryPrice.String(), trade.Status, closePrice, closeTime, pnl, trade.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("trade for bot %s order %s: %w", trade.BotID, trade.OrderID, ports.ErrDuplicateOrder)
		}
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("bot %s for trade order %s: %w", trade.BotID, trade.OrderID, ports.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to insert trade for bot %s: %w", trade.BotID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade of bot %s: %w", trade.BotID, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "botID": trade.BotID, "orderID": trade.OrderID})
	return id, nil
}

// FindTradeByID retrieves a trade by its unique ID.
func (r *Repository) FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	const query = `
	SELECT id, bot_id, order_id, symbol, side, quantity, entry_price, status, close_price, close_time, pnl, opened_at
	FROM trades
	WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query trade by ID %d: %w", id, err)
	}
	return trade, nil
}

// FindByBot retrieves the most recent trades for a bot, up to a limit.
func (r *Repository) FindByBot(ctx context.Context, botID string, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, bot_id, order_id, symbol, side, quantity, entry_price, status, close_price, close_time, pnl, opened_at
	FROM trades
	WHERE bot_id = ? ORDER BY opened_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for bot %s: %w", botID, err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// FindClosedByBot retrieves all CLOSED trades for a bot.
func (r *Repository) FindClosedByBot(ctx context.Context, botID string) ([]*domain.Trade, error) {
	const query = `
	SELECT id, bot_id, order_id, symbol, side, quantity, entry_price, status, close_price, close_time, pnl, opened_at
	FROM trades
	WHERE bot_id = ? AND status = ? ORDER BY close_time DESC`

	rows, err := r.db.QueryContext(ctx, query, botID, domain.TradeClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades for bot %s: %w", botID, err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// UpdateTrade modifies an existing trade based on its ID.
func (r *Repository) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `
	UPDATE trades
	SET status = ?, close_price = ?, close_time = ?, pnl = ?
	WHERE id = ?`

	var closePrice, pnl sql.NullString
	var closeTime sql.NullTime
	if trade.IsClosed() {
		closePrice = sql.NullString{String: trade.ClosePrice.String(), Valid: true}
		closeTime = sql.NullTime{Time: trade.CloseTime, Valid: true}
		pnl = sql.NullString{String: trade.PNL.String(), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query, trade.Status, closePrice, closeTime, pnl, trade.ID)
	if err != nil {
		return fmt.Errorf("failed to update trade %d: %w: %w", trade.ID, ports.ErrUpdateFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update trade %d: %w", trade.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade %d not found for update: %w", trade.ID, ports.ErrNotFound)
	}
	return nil
}

// TradeStore adapts the repository to ports.TradeRepository, whose method
// names collide with ports.BotRepository on a single receiver.
type TradeStore struct {
	r *Repository
}

// Trades returns the trade-facing view of the repository.
func (r *Repository) Trades() *TradeStore {
	return &TradeStore{r: r}
}

func (s *TradeStore) Create(ctx context.Context, trade *domain.Trade) (int64, error) {
	return s.r.CreateTrade(ctx, trade)
}

func (s *TradeStore) FindByID(ctx context.Context, id int64) (*domain.Trade, error) {
	return s.r.FindTradeByID(ctx, id)
}

func (s *TradeStore) FindByBot(ctx context.Context, botID string, limit int) ([]*domain.Trade, error) {
	return s.r.FindByBot(ctx, botID, limit)
}

func (s *TradeStore) FindClosedByBot(ctx context.Context, botID string) ([]*domain.Trade, error) {
	return s.r.FindClosedByBot(ctx, botID)
}

func (s *TradeStore) Update(ctx context.Context, trade *domain.Trade) error {
	return s.r.UpdateTrade(ctx, trade)
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanBot scans a row into a domain.Bot struct.
func scanBot(s scanner) (*domain.Bot, error) {
	b := &domain.Bot{}
	var maxMargin, status string
	err := s.Scan(
		&b.ID, &b.Name, &b.Symbol, &b.Leverage, &maxMargin, &b.MaxInvestment,
		&b.Secret, &status, &b.OwnerID, &b.CreatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	b.MaxMargin, err = decimal.NewFromString(maxMargin)
	if err != nil {
		return nil, fmt.Errorf("parsing max_margin '%s': %w", maxMargin, err)
	}
	b.Status = domain.BotStatus(status)
	return b, nil
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side, status, quantity, entryPrice string
	var closePrice, pnl sql.NullString
	var closeTime sql.NullTime
	err := s.Scan(
		&t.ID, &t.BotID, &t.OrderID, &t.Symbol, &side, &quantity, &entryPrice,
		&status, &closePrice, &closeTime, &pnl, &t.OpenedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}

	t.Side = domain.OrderSide(side)
	t.Status = domain.TradeStatus(status)
	if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("parsing quantity '%s': %w", quantity, err)
	}
	if t.EntryPrice, err = decimal.NewFromString(entryPrice); err != nil {
		return nil, fmt.Errorf("parsing entry_price '%s': %w", entryPrice, err)
	}
	if closePrice.Valid {
		if t.ClosePrice, err = decimal.NewFromString(closePrice.String); err != nil {
			return nil, fmt.Errorf("parsing close_price '%s': %w", closePrice.String, err)
		}
	}
	if closeTime.Valid {
		t.CloseTime = closeTime.Time
	}
	if pnl.Valid {
		if t.PNL, err = decimal.NewFromString(pnl.String); err != nil {
			return nil, fmt.Errorf("parsing pnl '%s': %w", pnl.String, err)
		}
	}
	return t, nil
}

func collectTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}
