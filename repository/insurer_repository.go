package repository

import (
	"context"
	"fmt"

	"github.com/cotizabot/cotizabot/models"
	"gorm.io/gorm"
)

// InsurerRepositoryImpl implements InsurerRepository interface
type InsurerRepositoryImpl struct {
	*BaseRepository[models.Insurer, struct{}]
}

// NewInsurerRepository creates a new insurer repository
func NewInsurerRepository(db *gorm.DB) InsurerRepository {
	return &InsurerRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Insurer, struct{}](db),
	}
}

// ListActiveWithRates returns active insurers and their active rate configs
func (r *InsurerRepositoryImpl) ListActiveWithRates(ctx context.Context) ([]*models.Insurer, error) {
	var insurers []*models.Insurer
	err := r.getDB(ctx).
		Where("is_active = ?", true).
		Preload("RateConfigs", "is_active = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&insurers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active insurers: %w", err)
	}
	return insurers, nil
}

// InsurabilityBlacklistRepositoryImpl implements InsurabilityBlacklistRepository interface
type InsurabilityBlacklistRepositoryImpl struct {
	*BaseRepository[models.InsurabilityBlacklistEntry, struct{}]
}

// NewInsurabilityBlacklistRepository creates a new blacklist repository
func NewInsurabilityBlacklistRepository(db *gorm.DB) InsurabilityBlacklistRepository {
	return &InsurabilityBlacklistRepositoryImpl{
		BaseRepository: NewBaseRepository[models.InsurabilityBlacklistEntry, struct{}](db),
	}
}

// ByMakeModel returns every entry for a make and model regardless of case
func (r *InsurabilityBlacklistRepositoryImpl) ByMakeModel(ctx context.Context, vehicleMake, vehicleModel string) ([]*models.InsurabilityBlacklistEntry, error) {
	var entries []*models.InsurabilityBlacklistEntry
	err := r.getDB(ctx).
		Where("LOWER(TRIM(make)) = LOWER(TRIM(?)) AND LOWER(TRIM(model)) = LOWER(TRIM(?))", vehicleMake, vehicleModel).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query insurability blacklist: %w", err)
	}
	return entries, nil
}
