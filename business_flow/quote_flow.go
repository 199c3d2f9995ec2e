package businessflow

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/cotizabot/cotizabot/models"
	"github.com/cotizabot/cotizabot/repository"
	"github.com/shopspring/decimal"
)

const DefaultMaxQuotes = 10

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// QuoteFlow computes indicative monthly premiums for a vehicle
type QuoteFlow interface {
	// ComputeQuotes returns quotes sorted by ascending premium. A blacklisted vehicle or an
	// empty catalog yields an empty list, not an error.
	ComputeQuotes(ctx context.Context, vehicle models.Vehicle) ([]models.Quote, error)
}

// QuoteFlowImpl implements the quote engine
type QuoteFlowImpl struct {
	insurerRepo     repository.InsurerRepository
	blacklistRepo   repository.InsurabilityBlacklistRepository
	maxResults      int
	maxInsuredValue decimal.Decimal
	logger          *slog.Logger
}

// NewQuoteFlow creates a new quote flow. maxResults <= 0 means DefaultMaxQuotes and a zero
// maxInsuredValue disables the upper bound.
func NewQuoteFlow(
	insurerRepo repository.InsurerRepository,
	blacklistRepo repository.InsurabilityBlacklistRepository,
	maxResults int,
	maxInsuredValue decimal.Decimal,
	logger *slog.Logger,
) QuoteFlow {
	if maxResults <= 0 {
		maxResults = DefaultMaxQuotes
	}
	return &QuoteFlowImpl{
		insurerRepo:     insurerRepo,
		blacklistRepo:   blacklistRepo,
		maxResults:      maxResults,
		maxInsuredValue: maxInsuredValue,
		logger:          logger,
	}
}

// ValidateVehicle rejects vehicles the quote engine cannot price
func ValidateVehicle(v models.Vehicle, maxInsuredValue decimal.Decimal) error {
	if strings.TrimSpace(v.Make) == "" || strings.TrimSpace(v.Model) == "" {
		return ErrInvalidVehicleMake
	}
	if v.Year <= 0 {
		return ErrInvalidVehicleYear
	}
	if !v.InsuredValue.IsPositive() {
		return ErrInvalidInsuredValue
	}
	if maxInsuredValue.IsPositive() && v.InsuredValue.GreaterThan(maxInsuredValue) {
		return ErrInsuredValueTooHigh
	}
	return nil
}

func (q *QuoteFlowImpl) ComputeQuotes(ctx context.Context, vehicle models.Vehicle) ([]models.Quote, error) {
	if err := ValidateVehicle(vehicle, q.maxInsuredValue); err != nil {
		return nil, NewBusinessError("INVALID_VEHICLE", "Vehicle cannot be quoted", err)
	}

	blacklisted, err := q.isBlacklisted(ctx, vehicle)
	if err != nil {
		return nil, NewBusinessError("BLACKLIST_LOOKUP_FAILED", "Failed to check insurability", err)
	}
	if blacklisted {
		quotesDeclinedTotal.Inc()
		q.logger.Info("vehicle is not insurable, declining to quote",
			"make", vehicle.Make, "model", vehicle.Model, "year", vehicle.Year)
		return []models.Quote{}, nil
	}

	insurers, err := q.insurerRepo.ListActiveWithRates(ctx)
	if err != nil {
		return nil, NewBusinessError("INSURER_LOOKUP_FAILED", "Failed to load insurer rates", err)
	}

	quotes := BuildQuotes(insurers, vehicle, q.maxResults)
	quotesComputedTotal.Add(float64(len(quotes)))

	return quotes, nil
}

func (q *QuoteFlowImpl) isBlacklisted(ctx context.Context, vehicle models.Vehicle) (bool, error) {
	entries, err := q.blacklistRepo.ByMakeModel(ctx, vehicle.Make, vehicle.Model)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.Matches(vehicle) {
			return true, nil
		}
	}
	return false, nil
}

// BuildQuotes prices every insurer and coverage the vehicle year is eligible for, drops
// non-positive premiums, and returns at most limit quotes sorted by premium. Equal premiums
// keep insurer order.
func BuildQuotes(insurers []*models.Insurer, vehicle models.Vehicle, limit int) []models.Quote {
	quotes := make([]models.Quote, 0, len(insurers)*2)

	for _, insurer := range insurers {
		if insurer == nil {
			continue
		}
		for _, coverage := range []models.CoverageType{models.CoverageTypeThirdParty, models.CoverageTypeFullCoverage} {
			cfg := insurer.RateConfig(coverage)
			if cfg == nil || !cfg.CoversYear(vehicle.Year) {
				continue
			}

			premium := MonthlyPremium(cfg, vehicle.InsuredValue)
			if !premium.IsPositive() {
				continue
			}

			quotes = append(quotes, models.Quote{
				InsurerID:       insurer.ID,
				InsurerName:     insurer.Name,
				CoverageType:    coverage,
				MonthlyPremium:  premium,
				CoverageSummary: cfg.CoverageSummary,
			})
		}
	}

	slices.SortStableFunc(quotes, func(a, b models.Quote) int {
		return a.MonthlyPremium.Cmp(b.MonthlyPremium)
	})

	if limit > 0 && len(quotes) > limit {
		quotes = quotes[:limit]
	}
	return quotes
}

// MonthlyPremium computes the per-installment premium of one rate config, rounded to cents.
//
//	ThirdParty:   (fixedNet + emission + assistance) * (1 + tax) / installments
//	FullCoverage: max(insured * rate/100, minimum) + emission + assistance, then the same tax and split
func MonthlyPremium(cfg *models.InsurerRateConfig, insuredValue decimal.Decimal) decimal.Decimal {
	var net decimal.Decimal

	switch cfg.CoverageType {
	case models.CoverageTypeThirdParty:
		net = cfg.FixedNetPremium
	case models.CoverageTypeFullCoverage:
		rate := ResolveRate(insuredValue, cfg.RateBands)
		net = insuredValue.Mul(rate).Div(hundred)
		if cfg.MinimumPremium.IsPositive() && net.LessThan(cfg.MinimumPremium) {
			net = cfg.MinimumPremium
		}
	default:
		return decimal.Zero
	}

	installments := cfg.Installments
	if installments <= 0 {
		installments = 1
	}

	total := net.Add(cfg.EmissionCost).Add(cfg.Assistance).Mul(one.Add(cfg.TaxRate))
	return total.Div(decimal.NewFromInt(int64(installments))).Round(2)
}
