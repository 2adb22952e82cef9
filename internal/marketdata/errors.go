package marketdata

import (
	"fmt"
	apperrors "market_maker/pkg/errors"
)

func errSymbolNotFound(symbol string) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, symbol)
}
