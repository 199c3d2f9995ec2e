package testing

import (
	"fmt"
	"math/rand"

	"github.com/cotizabot/cotizabot/models"
	"github.com/cotizabot/cotizabot/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestPlan creates a monthly plan with the given fee
func (tf *TestFixtures) CreateTestPlan(name string, amount decimal.Decimal) (*models.SubscriptionPlan, error) {
	plan := &models.SubscriptionPlan{
		Name:     name,
		Amount:   amount,
		Currency: utils.DefaultCurrency,
		Period:   models.PlanPeriodMonthly,
		Benefits: datatypes.JSONSlice[string]{"leads"},
	}
	if err := tf.DB.DB.Create(plan).Error; err != nil {
		return nil, fmt.Errorf("failed to create test plan: %w", err)
	}
	return plan, nil
}

// CreateTestBroker creates a broker with a quota and a number of leads already received this month
func (tf *TestFixtures) CreateTestBroker(status models.SubscriptionStatus, quota, currentLeads int) (*models.Broker, error) {
	randomDigits := fmt.Sprintf("%08d", rand.Intn(90000000)+10000000)
	broker := &models.Broker{
		Name:               "Broker " + randomDigits,
		Phone:              "+5255" + randomDigits,
		SubscriptionStatus: status,
		MonthlyLeadQuota:   quota,
		CurrentMonthLeads:  currentLeads,
		LoginActive:        utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(broker).Error; err != nil {
		return nil, fmt.Errorf("failed to create test broker: %w", err)
	}
	return broker, nil
}

// CreateTestLead creates a lead with a complete vehicle
func (tf *TestFixtures) CreateTestLead(vehicle models.Vehicle) (*models.Lead, error) {
	randomDigits := fmt.Sprintf("%08d", rand.Intn(90000000)+10000000)
	lead := &models.Lead{
		Phone:        "+5233" + randomDigits,
		Name:         "Lead " + randomDigits,
		VehicleMake:  vehicle.Make,
		VehicleModel: vehicle.Model,
		VehicleYear:  vehicle.Year,
		InsuredValue: decimal.NewNullDecimal(vehicle.InsuredValue),
		Status:       models.LeadStatusPendingData,
	}
	if err := tf.DB.DB.Create(lead).Error; err != nil {
		return nil, fmt.Errorf("failed to create test lead: %w", err)
	}
	return lead, nil
}

// CreateTestInsurer creates an active insurer with both coverage types. Full coverage uses one
// 3.5% band up to 100000; third party uses a 500 fixed net premium.
func (tf *TestFixtures) CreateTestInsurer(name string, sortOrder int) (*models.Insurer, error) {
	insurer := &models.Insurer{
		Name:      name,
		IsActive:  utils.ToPtr(true),
		SortOrder: sortOrder,
		RateConfigs: []models.InsurerRateConfig{
			FullCoverageConfig(),
			ThirdPartyConfig(),
		},
	}
	if err := tf.DB.DB.Create(insurer).Error; err != nil {
		return nil, fmt.Errorf("failed to create test insurer: %w", err)
	}
	return insurer, nil
}

// CreateBlacklistEntry excludes a make and model, optionally for one year only
func (tf *TestFixtures) CreateBlacklistEntry(vehicleMake, vehicleModel string, year *int) (*models.InsurabilityBlacklistEntry, error) {
	entry := &models.InsurabilityBlacklistEntry{
		Make:   vehicleMake,
		Model:  vehicleModel,
		Year:   year,
		Reason: "test",
	}
	if err := tf.DB.DB.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create blacklist entry: %w", err)
	}
	return entry, nil
}

// FullCoverageConfig is priced at 282.33 per month for an insured value of 80000
func FullCoverageConfig() models.InsurerRateConfig {
	return models.InsurerRateConfig{
		CoverageType:   models.CoverageTypeFullCoverage,
		TaxRate:        decimal.RequireFromString("0.12"),
		Installments:   12,
		EmissionCost:   decimal.NewFromInt(150),
		Assistance:     decimal.NewFromInt(75),
		MinimumPremium: decimal.Zero,
		RateBands: datatypes.JSONSlice[models.RateBand]{
			{From: decimal.Zero, To: decimal.NewFromInt(100000), RatePercent: decimal.RequireFromString("3.5")},
		},
		YearFrom:        2000,
		YearTo:          2030,
		CoverageSummary: "Own damage, theft and liability",
		IsActive:        utils.ToPtr(true),
	}
}

// ThirdPartyConfig is priced at 60.67 per month regardless of insured value
func ThirdPartyConfig() models.InsurerRateConfig {
	return models.InsurerRateConfig{
		CoverageType:    models.CoverageTypeThirdParty,
		TaxRate:         decimal.RequireFromString("0.12"),
		Installments:    12,
		EmissionCost:    decimal.NewFromInt(100),
		Assistance:      decimal.NewFromInt(50),
		FixedNetPremium: decimal.NewFromInt(500),
		RateBands:       datatypes.JSONSlice[models.RateBand]{},
		YearFrom:        2000,
		YearTo:          2030,
		CoverageSummary: "Liability only",
		IsActive:        utils.ToPtr(true),
	}
}

// HashAPIKey returns an ADMIN_API_KEY_HASHES entry for key
func HashAPIKey(name, key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	if name == "" {
		return string(hash), nil
	}
	return name + ":" + string(hash), nil
}
