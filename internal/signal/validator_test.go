package signal

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradehook/internal/domain"
	"tradehook/internal/ports"
)

// Mock implementations
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockBotRepo struct {
	bots    map[string]*domain.Bot
	findErr error
}

func (m *mockBotRepo) Create(ctx context.Context, bot *domain.Bot) error { return nil }

func (m *mockBotRepo) FindByID(ctx context.Context, id string) (*domain.Bot, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.bots[id], nil
}

func (m *mockBotRepo) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Bot, error) {
	return nil, nil
}
func (m *mockBotRepo) Update(ctx context.Context, bot *domain.Bot) error { return nil }
func (m *mockBotRepo) Delete(ctx context.Context, id string) error       { return nil }

func testBot() *domain.Bot {
	return &domain.Bot{
		ID:            "bot-1",
		Name:          "test bot",
		Symbol:        "ETHUSDT",
		Leverage:      10,
		MaxMargin:     decimal.NewFromInt(500),
		MaxInvestment: 30,
		Secret:        "super-secret-signing-key",
		Status:        domain.BotActive,
		OwnerID:       "user-1",
	}
}

func signedSignal(bot *domain.Bot, issuedAt time.Time, maxLag int) *domain.Signal {
	sig := &domain.Signal{
		BotID:        bot.ID,
		Timestamp:    issuedAt,
		MaxLag:       maxLag,
		PrevPosition: domain.PositionFlat,
		Position:     domain.PositionLong,
		Symbol:       "ETHUSDT",
		TriggerPrice: decimal.NewFromInt(2000),
		Amount:       decimal.NewFromInt(100),
		AmountUnit:   domain.AmountQuote,
	}
	sig.Signature = Sign(sig.CanonicalPayload(), bot.Secret)
	return sig
}

func newTestValidator(t *testing.T, bots *mockBotRepo, now time.Time) *Validator {
	t.Helper()
	v, err := NewValidator(Config{
		Bots:   bots,
		Logger: &mockLogger{},
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)
	return v
}

func TestValidator_BotNotFound(t *testing.T) {
	now := time.Now()
	v := newTestValidator(t, &mockBotRepo{bots: map[string]*domain.Bot{}}, now)

	sig := signedSignal(testBot(), now, 30)
	_, err := v.Validate(context.Background(), sig)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestValidator_Staleness(t *testing.T) {
	now := time.Now()
	bot := testBot()
	repo := &mockBotRepo{bots: map[string]*domain.Bot{bot.ID: bot}}
	v := newTestValidator(t, repo, now)

	tests := []struct {
		name     string
		issuedAt time.Time
		maxLag   int
		wantErr  error
	}{
		{"fresh signal accepted", now.Add(-10 * time.Second), 30, nil},
		{"signal older than max lag", now.Add(-31 * time.Second), 30, ports.ErrSignalExpired},
		{"exact boundary accepted", now.Add(-30 * time.Second), 30, nil},
		{"zero max lag rejected", now.Add(-1 * time.Second), 0, ports.ErrSignalExpired},
		{"negative max lag rejected", now.Add(-1 * time.Second), -5, ports.ErrSignalExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := signedSignal(bot, tt.issuedAt, tt.maxLag)
			got, err := v.Validate(context.Background(), sig)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, bot.ID, got.ID)
		})
	}
}

func TestValidator_SignatureRoundTrip(t *testing.T) {
	now := time.Now()
	bot := testBot()
	repo := &mockBotRepo{bots: map[string]*domain.Bot{bot.ID: bot}}
	v := newTestValidator(t, repo, now)

	sig := signedSignal(bot, now.Add(-time.Second), 30)

	// Re-signing the same canonical payload reproduces the signature.
	assert.Equal(t, sig.Signature, Sign(sig.CanonicalPayload(), bot.Secret))

	got, err := v.Validate(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, bot.ID, got.ID)
}

func TestValidator_TamperedPayload(t *testing.T) {
	now := time.Now()
	bot := testBot()
	repo := &mockBotRepo{bots: map[string]*domain.Bot{bot.ID: bot}}
	v := newTestValidator(t, repo, now)

	tamper := []struct {
		name   string
		mutate func(*domain.Signal)
	}{
		{"position changed", func(s *domain.Signal) { s.Position = domain.PositionShort }},
		{"symbol changed", func(s *domain.Signal) { s.Symbol = "BTCUSDT" }},
		{"amount changed", func(s *domain.Signal) { s.Amount = decimal.NewFromInt(9999) }},
		{"timestamp changed", func(s *domain.Signal) { s.Timestamp = s.Timestamp.Add(time.Second) }},
		{"unit changed", func(s *domain.Signal) { s.AmountUnit = domain.AmountBase }},
	}

	for _, tt := range tamper {
		t.Run(tt.name, func(t *testing.T) {
			sig := signedSignal(bot, now.Add(-time.Second), 30)
			tt.mutate(sig)
			_, err := v.Validate(context.Background(), sig)
			assert.ErrorIs(t, err, ports.ErrInvalidSignature)
		})
	}
}

func TestValidator_WrongSecret(t *testing.T) {
	now := time.Now()
	bot := testBot()
	repo := &mockBotRepo{bots: map[string]*domain.Bot{bot.ID: bot}}
	v := newTestValidator(t, repo, now)

	sig := signedSignal(bot, now.Add(-time.Second), 30)
	sig.Signature = Sign(sig.CanonicalPayload(), "some-other-secret")

	_, err := v.Validate(context.Background(), sig)
	assert.ErrorIs(t, err, ports.ErrInvalidSignature)
}

func TestValidator_FirstFailureWins(t *testing.T) {
	// A stale signal with a bad signature reports Expired, not InvalidSignature.
	now := time.Now()
	bot := testBot()
	repo := &mockBotRepo{bots: map[string]*domain.Bot{bot.ID: bot}}
	v := newTestValidator(t, repo, now)

	sig := signedSignal(bot, now.Add(-120*time.Second), 30)
	sig.Signature = "garbage"

	_, err := v.Validate(context.Background(), sig)
	assert.ErrorIs(t, err, ports.ErrSignalExpired)
	assert.NotErrorIs(t, err, ports.ErrInvalidSignature)
}
