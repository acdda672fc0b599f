package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// InitialStake is the cash every portfolio starts with and resets to.
var InitialStake = decimal.NewFromInt(10000)

const (
	// CashPrecision is the currency rounding applied after every cash
	// mutation so drift never accumulates across repeated trades.
	CashPrecision = 2
	// AssetPrecision is the crypto-standard quantity rounding.
	AssetPrecision = 8
)

// Portfolio is the authoritative per-user holding record.
// Cash never goes negative; every quantity in Assets is positive, a
// ticker whose quantity rounds to zero or below is removed rather than
// stored.
type Portfolio struct {
	Cash          decimal.Decimal            `json:"cash"`
	Assets        map[string]decimal.Decimal `json:"assets"`
	LastUpdated   time.Time                  `json:"lastUpdated"`
	LastResetDate string                     `json:"lastResetDate"`
}

func newPortfolio(today string, now time.Time) *Portfolio {
	return &Portfolio{
		Cash:          InitialStake,
		Assets:        make(map[string]decimal.Decimal),
		LastUpdated:   now,
		LastResetDate: today,
	}
}

// Quantity returns the held amount for ticker, zero when absent.
func (p *Portfolio) Quantity(ticker string) decimal.Decimal {
	return p.Assets[ticker]
}

// TotalValue is cash plus the marked-to-market value of every holding.
// Tickers missing from prices contribute nothing: a stale price map
// undervalues rather than errors.
func TotalValue(p *Portfolio, prices map[string]float64) float64 {
	total := p.Cash
	for ticker, qty := range p.Assets {
		price, ok := prices[ticker]
		if !ok {
			continue
		}
		total = total.Add(qty.Mul(decimal.NewFromFloat(price)))
	}
	value, _ := total.Float64()
	return value
}
