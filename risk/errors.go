package risk

import "errors"

var (
	ErrPortfolioLossLimit = errors.New("portfolio loss limit breached")
	ErrShutdownTimeout    = errors.New("positions not flat within shutdown grace")
)
