package businessflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cotizabot/cotizabot/models"
	"github.com/cotizabot/cotizabot/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInsurer(id uint, name string, configs ...*models.InsurerRateConfig) *models.Insurer {
	insurer := &models.Insurer{ID: id, Name: name, IsActive: utils.ToPtr(true), SortOrder: int(id)}
	for _, cfg := range configs {
		cfg.InsurerID = id
		insurer.RateConfigs = append(insurer.RateConfigs, *cfg)
	}
	return insurer
}

func testVehicle() models.Vehicle {
	return models.Vehicle{Make: "Nissan", Model: "Versa", Year: 2020, InsuredValue: dec("80000")}
}

func TestBuildQuotes(t *testing.T) {
	t.Run("PricesBothCoveragesSortedByPremium", func(t *testing.T) {
		insurers := []*models.Insurer{testInsurer(1, "Qualitas", fullCoverageConfig(), thirdPartyConfig())}

		quotes := BuildQuotes(insurers, testVehicle(), DefaultMaxQuotes)
		require.Len(t, quotes, 2)
		assert.Equal(t, models.CoverageTypeThirdParty, quotes[0].CoverageType)
		assert.Equal(t, "60.67", quotes[0].MonthlyPremium.StringFixed(2))
		assert.Equal(t, models.CoverageTypeFullCoverage, quotes[1].CoverageType)
		assert.Equal(t, "282.33", quotes[1].MonthlyPremium.StringFixed(2))
		assert.Equal(t, "Qualitas", quotes[1].InsurerName)
	})

	t.Run("EqualPremiumsKeepInsurerOrder", func(t *testing.T) {
		insurers := []*models.Insurer{
			testInsurer(7, "Second", thirdPartyConfig()),
			testInsurer(3, "First", thirdPartyConfig()),
		}

		quotes := BuildQuotes(insurers, testVehicle(), DefaultMaxQuotes)
		require.Len(t, quotes, 2)
		assert.Equal(t, uint(7), quotes[0].InsurerID)
		assert.Equal(t, uint(3), quotes[1].InsurerID)
	})

	t.Run("SkipsYearsOutsideRange", func(t *testing.T) {
		fc := fullCoverageConfig()
		fc.YearFrom = 2015
		insurers := []*models.Insurer{testInsurer(1, "A", fc, thirdPartyConfig())}

		v := testVehicle()
		v.Year = 2010
		quotes := BuildQuotes(insurers, v, DefaultMaxQuotes)
		require.Len(t, quotes, 1)
		assert.Equal(t, models.CoverageTypeThirdParty, quotes[0].CoverageType)
	})

	t.Run("SkipsInactiveAndMissingConfigs", func(t *testing.T) {
		tp := thirdPartyConfig()
		tp.IsActive = utils.ToPtr(false)
		insurers := []*models.Insurer{
			testInsurer(1, "Inactive", tp),
			testInsurer(2, "NoConfigs"),
			nil,
		}

		assert.Empty(t, BuildQuotes(insurers, testVehicle(), DefaultMaxQuotes))
	})

	t.Run("DropsNonPositivePremiums", func(t *testing.T) {
		tp := thirdPartyConfig()
		tp.FixedNetPremium = decimal.Zero
		tp.EmissionCost = decimal.Zero
		tp.Assistance = decimal.Zero
		insurers := []*models.Insurer{testInsurer(1, "Free", tp)}

		assert.Empty(t, BuildQuotes(insurers, testVehicle(), DefaultMaxQuotes))
	})

	t.Run("CapsAtLimit", func(t *testing.T) {
		var insurers []*models.Insurer
		for i := 1; i <= 6; i++ {
			tp := thirdPartyConfig()
			tp.FixedNetPremium = decimal.NewFromInt(int64(1000 - i*100))
			insurers = append(insurers, testInsurer(uint(i), fmt.Sprintf("Insurer %d", i), fullCoverageConfig(), tp))
		}

		quotes := BuildQuotes(insurers, testVehicle(), DefaultMaxQuotes)
		require.Len(t, quotes, DefaultMaxQuotes)
		for i := 1; i < len(quotes); i++ {
			assert.True(t, quotes[i-1].MonthlyPremium.LessThanOrEqual(quotes[i].MonthlyPremium))
		}
		// Cheapest third party quote comes from the last insurer
		assert.Equal(t, uint(6), quotes[0].InsurerID)
	})
}

func TestComputeQuotes(t *testing.T) {
	ctx := context.Background()
	catalog := &fakeInsurerRepo{insurers: []*models.Insurer{
		testInsurer(1, "Qualitas", fullCoverageConfig(), thirdPartyConfig()),
	}}

	t.Run("ReturnsQuotes", func(t *testing.T) {
		flow := NewQuoteFlow(catalog, &fakeBlacklistRepo{}, 0, decimal.Zero, testLogger)

		quotes, err := flow.ComputeQuotes(ctx, testVehicle())
		require.NoError(t, err)
		assert.Len(t, quotes, 2)
	})

	t.Run("BlacklistedForAllYears", func(t *testing.T) {
		blacklist := &fakeBlacklistRepo{entries: []*models.InsurabilityBlacklistEntry{
			{Make: "NISSAN", Model: "versa", Reason: "theft risk"},
		}}
		flow := NewQuoteFlow(catalog, blacklist, 0, decimal.Zero, testLogger)

		quotes, err := flow.ComputeQuotes(ctx, testVehicle())
		require.NoError(t, err)
		require.NotNil(t, quotes)
		assert.Empty(t, quotes)
	})

	t.Run("BlacklistedForOneYearOnly", func(t *testing.T) {
		blacklist := &fakeBlacklistRepo{entries: []*models.InsurabilityBlacklistEntry{
			{Make: "Nissan", Model: "Versa", Year: utils.ToPtr(2018)},
		}}
		flow := NewQuoteFlow(catalog, blacklist, 0, decimal.Zero, testLogger)

		quotes, err := flow.ComputeQuotes(ctx, testVehicle())
		require.NoError(t, err)
		assert.Len(t, quotes, 2)

		v := testVehicle()
		v.Year = 2018
		quotes, err = flow.ComputeQuotes(ctx, v)
		require.NoError(t, err)
		assert.Empty(t, quotes)
	})

	t.Run("RespectsConfiguredLimit", func(t *testing.T) {
		flow := NewQuoteFlow(catalog, &fakeBlacklistRepo{}, 1, decimal.Zero, testLogger)

		quotes, err := flow.ComputeQuotes(ctx, testVehicle())
		require.NoError(t, err)
		require.Len(t, quotes, 1)
		assert.Equal(t, models.CoverageTypeThirdParty, quotes[0].CoverageType)
	})

	t.Run("CatalogFailure", func(t *testing.T) {
		broken := &fakeInsurerRepo{err: errors.New("connection refused")}
		flow := NewQuoteFlow(broken, &fakeBlacklistRepo{}, 0, decimal.Zero, testLogger)

		_, err := flow.ComputeQuotes(ctx, testVehicle())
		require.Error(t, err)
		var be *BusinessError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "INSURER_LOOKUP_FAILED", be.Code)
	})

	t.Run("InvalidVehicle", func(t *testing.T) {
		flow := NewQuoteFlow(catalog, &fakeBlacklistRepo{}, 0, dec("5000000"), testLogger)

		cases := map[string]struct {
			mutate func(v *models.Vehicle)
			want   error
		}{
			"MissingMake":      {func(v *models.Vehicle) { v.Make = " " }, ErrInvalidVehicleMake},
			"ZeroYear":         {func(v *models.Vehicle) { v.Year = 0 }, ErrInvalidVehicleYear},
			"NegativeValue":    {func(v *models.Vehicle) { v.InsuredValue = dec("-1") }, ErrInvalidInsuredValue},
			"ValueAboveLimit":  {func(v *models.Vehicle) { v.InsuredValue = dec("5000000.01") }, ErrInsuredValueTooHigh},
			"ZeroInsuredValue": {func(v *models.Vehicle) { v.InsuredValue = decimal.Zero }, ErrInvalidInsuredValue},
		}
		for name, tc := range cases {
			t.Run(name, func(t *testing.T) {
				v := testVehicle()
				tc.mutate(&v)

				_, err := flow.ComputeQuotes(ctx, v)
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.want)
				assert.True(t, IsInvalidInput(err))
			})
		}
	})
}
