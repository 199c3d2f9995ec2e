package businessflow

import (
	"github.com/cotizabot/cotizabot/models"
	"github.com/shopspring/decimal"
)

// ResolveRate returns the percentage rate that applies to an insured sum.
//
// The first band with From <= sum <= To wins; bands are not assumed to be sorted. When no band
// matches, the last band in list order is used rather than the one with the highest threshold.
// Existing catalog data relies on that fallback. An empty list resolves to zero and the result is
// never negative.
func ResolveRate(sum decimal.Decimal, bands []models.RateBand) decimal.Decimal {
	if len(bands) == 0 {
		return decimal.Zero
	}

	rate := bands[len(bands)-1].RatePercent
	for _, band := range bands {
		if band.From.LessThanOrEqual(sum) && sum.LessThanOrEqual(band.To) {
			rate = band.RatePercent
			break
		}
	}

	if rate.IsNegative() {
		return decimal.Zero
	}
	return rate
}
