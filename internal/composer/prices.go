package composer

// defaultPricePerMillion is DefaultPrices' rate for any model it does
// not list. A configured table (internal/config.Config.PricePerMillion)
// uses its own "default" entry instead.
const defaultPricePerMillion = 0.15

// DefaultPrices is a minimal built-in PriceTable, used when the caller
// has not configured one (e.g. CLI one-shot invocations).
func DefaultPrices(model string) float64 {
	switch model {
	case "gpt-4o-mini":
		return 0.15
	case "gpt-4o":
		return 2.50
	case "claude-3-5-sonnet":
		return 3.00
	default:
		return defaultPricePerMillion
	}
}
