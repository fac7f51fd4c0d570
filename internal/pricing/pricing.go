// Package pricing turns a generation request into a credit cost and converts
// between credits and wallet currency. Everything here is pure.
package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// RupeesPerCredit is the fixed exchange rate between credits and the wallet
// currency.
const RupeesPerCredit = 25

var (
	baseCredit        = decimal.NewFromInt(1)
	perExtraProduct   = decimal.NewFromInt(1)
	backgroundRemoval = decimal.NewFromFloat(0.5)
	styleTransfer     = decimal.NewFromInt(1)
	rate              = decimal.NewFromInt(RupeesPerCredit)
)

// resolutionMultipliers scales the base credit. Unknown resolutions fall
// back to 1.
var resolutionMultipliers = map[string]int64{
	"1024x1024": 1,
	"1920x1080": 2,
	"1080x1920": 2,
	"2560x1440": 3,
	"3840x2160": 5,
}

// Quote is the price of one generation.
type Quote struct {
	Credits decimal.Decimal `json:"credits"`
	Amount  decimal.Decimal `json:"amount"` // Credits in wallet currency
}

// CalculateCost returns the credit cost of a generation.
func CalculateCost(resolution string, productCount int, withBackgroundRemoval, withStyleTransfer bool) decimal.Decimal {
	multiplier, ok := resolutionMultipliers[resolution]
	if !ok {
		multiplier = 1
	}
	cost := baseCredit.Mul(decimal.NewFromInt(multiplier))

	if productCount > 1 {
		cost = cost.Add(perExtraProduct.Mul(decimal.NewFromInt(int64(productCount - 1))))
	}
	if withBackgroundRemoval {
		cost = cost.Add(backgroundRemoval)
	}
	if withStyleTransfer {
		cost = cost.Add(styleTransfer)
	}
	return cost
}

// QuoteFor prices a generation in both credits and currency.
func QuoteFor(resolution string, productCount int, withBackgroundRemoval, withStyleTransfer bool) Quote {
	credits := CalculateCost(resolution, productCount, withBackgroundRemoval, withStyleTransfer)
	return Quote{Credits: credits, Amount: ToCurrency(credits)}
}

// ToCurrency converts credits to wallet currency.
func ToCurrency(credits decimal.Decimal) decimal.Decimal {
	return credits.Mul(rate)
}

// CreditsFor returns the whole credits an amount of currency buys.
func CreditsFor(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(rate).Floor()
}

// IsKnownResolution reports whether resolution has an entry in the price table.
func IsKnownResolution(resolution string) bool {
	_, ok := resolutionMultipliers[resolution]
	return ok
}

// Resolutions lists the priced resolutions, cheapest first.
func Resolutions() []string {
	out := make([]string, 0, len(resolutionMultipliers))
	for r := range resolutionMultipliers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		mi, mj := resolutionMultipliers[out[i]], resolutionMultipliers[out[j]]
		if mi != mj {
			return mi < mj
		}
		return out[i] < out[j]
	})
	return out
}
