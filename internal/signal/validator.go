package signal

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"tradehook/internal/domain"
	"tradehook/internal/ports"
)

// Sign computes the hex-encoded HMAC-SHA256 of a canonical payload with the
// given secret. Signal senders call this over Signal.CanonicalPayload.
func Sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validator authenticates and freshness-checks inbound signals against the
// addressed bot's registered secret.
type Validator struct {
	bots   ports.BotRepository
	logger ports.Logger
	now    func() time.Time
}

// Config holds the validator's dependencies.
type Config struct {
	Bots   ports.BotRepository
	Logger ports.Logger
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// NewValidator creates a signal validator.
func NewValidator(cfg Config) (*Validator, error) {
	if cfg.Bots == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Validator")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Validator{bots: cfg.Bots, logger: cfg.Logger, now: now}, nil
}

// Validate runs the authentication steps in order, first failure wins:
// bot lookup, staleness check, signature check. It has no side effects and
// returns the bot the signal is addressed to on success.
func (v *Validator) Validate(ctx context.Context, sig *domain.Signal) (*domain.Bot, error) {
	bot, err := v.bots.FindByID(ctx, sig.BotID)
	if err != nil {
		return nil, fmt.Errorf("bot lookup for %s: %w", sig.BotID, err)
	}
	if bot == nil {
		return nil, fmt.Errorf("bot %s: %w", sig.BotID, ports.ErrNotFound)
	}

	// A missing or non-positive max_lag rejects the signal rather than
	// accepting unbounded staleness.
	if sig.MaxLag <= 0 {
		return nil, fmt.Errorf("max_lag %d: %w", sig.MaxLag, ports.ErrSignalExpired)
	}
	age := v.now().Sub(sig.Timestamp)
	if age > time.Duration(sig.MaxLag)*time.Second {
		v.logger.Warn(ctx, "Rejected stale signal", map[string]interface{}{
			"botID":  sig.BotID,
			"age":    age.String(),
			"maxLag": sig.MaxLag,
		})
		return nil, fmt.Errorf("signal age %s exceeds max lag %ds: %w", age, sig.MaxLag, ports.ErrSignalExpired)
	}

	expected := Sign(sig.CanonicalPayload(), bot.Secret)
	if !hmac.Equal([]byte(expected), []byte(sig.Signature)) {
		v.logger.Warn(ctx, "Rejected signal with bad signature", map[string]interface{}{"botID": sig.BotID})
		return nil, fmt.Errorf("bot %s: %w", sig.BotID, ports.ErrInvalidSignature)
	}

	return bot, nil
}
