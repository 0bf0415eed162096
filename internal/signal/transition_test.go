package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradehook/internal/domain"
	"tradehook/internal/ports"
)

func TestResolveTransition_ValidPairs(t *testing.T) {
	tests := []struct {
		name string
		prev domain.MarketPosition
		next domain.MarketPosition
		want domain.OrderSide
	}{
		{"open long", domain.PositionFlat, domain.PositionLong, domain.Buy},
		{"close long", domain.PositionLong, domain.PositionFlat, domain.Sell},
		{"open short", domain.PositionFlat, domain.PositionShort, domain.Sell},
		{"close short", domain.PositionShort, domain.PositionFlat, domain.Buy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side, err := ResolveTransition(tt.prev, tt.next)
			require.NoError(t, err)
			assert.Equal(t, tt.want, side)
		})
	}
}

func TestResolveTransition_InvalidPairs(t *testing.T) {
	positions := []domain.MarketPosition{domain.PositionFlat, domain.PositionLong, domain.PositionShort}

	valid := map[[2]domain.MarketPosition]bool{
		{domain.PositionFlat, domain.PositionLong}:  true,
		{domain.PositionLong, domain.PositionFlat}:  true,
		{domain.PositionFlat, domain.PositionShort}: true,
		{domain.PositionShort, domain.PositionFlat}: true,
	}

	invalid := 0
	for _, prev := range positions {
		for _, next := range positions {
			if valid[[2]domain.MarketPosition{prev, next}] {
				continue
			}
			invalid++
			side, err := ResolveTransition(prev, next)
			assert.ErrorIs(t, err, ports.ErrInvalidTransition, "%s -> %s", prev, next)
			assert.Empty(t, side)
		}
	}
	// 3x3 pairs minus the 4 valid ones.
	assert.Equal(t, 5, invalid)
}

func TestResolveTransition_NoImplicitFlip(t *testing.T) {
	// A long -> short flip must not be inferred as close-and-reopen.
	_, err := ResolveTransition(domain.PositionLong, domain.PositionShort)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)

	_, err = ResolveTransition(domain.PositionShort, domain.PositionLong)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)
}
