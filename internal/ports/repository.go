package ports

import (
	"context"

	"tradehook/internal/domain"
)

// BotRepository defines the interface for storing and retrieving bots.
type BotRepository interface {
	// Create saves a new bot.
	Create(ctx context.Context, bot *domain.Bot) error
	// FindByID retrieves a bot by its identifier.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.Bot, error)
	// FindByOwner retrieves all bots belonging to a user, newest first.
	FindByOwner(ctx context.Context, ownerID string) ([]*domain.Bot, error)
	// Update modifies an existing bot. Returns ErrNotFound if absent.
	Update(ctx context.Context, bot *domain.Bot) error
	// Delete removes a bot and all of its trades. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error
}

// TradeRepository defines the interface for storing and retrieving trades.
type TradeRepository interface {
	// Create saves a new trade and returns its assigned ID. The
	// (bot id, order id) uniqueness check and the insert are a single atomic
	// operation; a conflicting insert returns ErrDuplicateOrder.
	Create(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindByID retrieves a trade by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id int64) (*domain.Trade, error)
	// FindByBot retrieves the most recent trades for a bot, up to a limit.
	FindByBot(ctx context.Context, botID string, limit int) ([]*domain.Trade, error)
	// FindClosedByBot retrieves all CLOSED trades for a bot.
	FindClosedByBot(ctx context.Context, botID string) ([]*domain.Trade, error)
	// Update modifies an existing trade. Returns ErrNotFound if absent.
	Update(ctx context.Context, trade *domain.Trade) error
}
