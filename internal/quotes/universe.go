package quotes

import "strings"

// RequestType selects which slice of the symbol universe to list.
type RequestType string

const (
	RequestStocks RequestType = "stocks"
	RequestCrypto RequestType = "crypto"
	RequestAll    RequestType = "all"
	RequestAuto   RequestType = "auto"
)

// ParseRequestType maps a query-string value to a RequestType, falling
// back to auto for anything unrecognized.
func ParseRequestType(s string) RequestType {
	switch RequestType(s) {
	case RequestStocks, RequestCrypto, RequestAll:
		return RequestType(s)
	default:
		return RequestAuto
	}
}

// Equities and Crypto form the fixed tradeable universe. Crypto symbols
// carry the -USD suffix and trade around the clock; equities only during
// exchange session hours.
var (
	Equities = []string{"GME", "TSLA", "NVDA", "AMC", "SPY", "AAPL", "MSFT", "COIN", "HOOD", "RDDT"}
	Crypto   = []string{"BTC-USD", "ETH-USD", "DOGE-USD", "SOL-USD", "SHIB-USD"}
)

// baselines seed synthetic quotes when the upstream feed is down.
var baselines = map[string]float64{
	"GME":      25.50,
	"TSLA":     175.20,
	"NVDA":     880.50,
	"AMC":      4.20,
	"SPY":      510.30,
	"AAPL":     170.10,
	"MSFT":     420.69,
	"COIN":     245.80,
	"HOOD":     18.90,
	"RDDT":     65.40,
	"BTC-USD":  68500.00,
	"ETH-USD":  3500.00,
	"DOGE-USD": 0.18,
	"SOL-USD":  180.50,
	"SHIB-USD": 0.000027,
}

// defaultBaseline backstops a universe symbol with no seeded price.
const defaultBaseline = 100.00

// IsCrypto reports whether symbol belongs to the always-tradeable
// crypto set.
func IsCrypto(symbol string) bool {
	return strings.HasSuffix(symbol, "-USD")
}

// Known reports whether symbol belongs to the fixed universe.
func Known(symbol string) bool {
	for _, s := range Equities {
		if s == symbol {
			return true
		}
	}
	for _, s := range Crypto {
		if s == symbol {
			return true
		}
	}
	return false
}

// Baseline returns the fallback price seed for symbol.
func Baseline(symbol string) float64 {
	if base, ok := baselines[symbol]; ok {
		return base
	}
	return defaultBaseline
}
