package portfolio

import "errors"

// ErrInvalidPortfolio is returned when portfolio fields fail validation
var ErrInvalidPortfolio = errors.New("invalid portfolio")
