package signal

import (
	"fmt"

	"tradehook/internal/domain"
	"tradehook/internal/ports"
)

// ResolveTransition maps a (previous, target) market-position pair to the
// order side that performs it. Only open and close transitions are allowed:
//
//	flat  -> long   BUY
//	long  -> flat   SELL
//	flat  -> short  SELL
//	short -> flat   BUY
//
// Direct long<->short flips and same-state transitions are invalid; a flip is
// never decomposed into close-then-reopen here.
func ResolveTransition(prev, next domain.MarketPosition) (domain.OrderSide, error) {
	switch {
	case prev == domain.PositionFlat && next == domain.PositionLong:
		return domain.Buy, nil
	case prev == domain.PositionLong && next == domain.PositionFlat:
		return domain.Sell, nil
	case prev == domain.PositionFlat && next == domain.PositionShort:
		return domain.Sell, nil
	case prev == domain.PositionShort && next == domain.PositionFlat:
		return domain.Buy, nil
	}
	return "", fmt.Errorf("%w: %q -> %q", ports.ErrInvalidTransition, prev, next)
}
