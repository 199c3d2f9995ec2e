package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/cotizabot/cotizabot/models"
	"gorm.io/gorm"
)

// SubscriptionPlanRepositoryImpl implements SubscriptionPlanRepository interface
type SubscriptionPlanRepositoryImpl struct {
	*BaseRepository[models.SubscriptionPlan, models.SubscriptionPlanFilter]
}

// NewSubscriptionPlanRepository creates a new subscription plan repository
func NewSubscriptionPlanRepository(db *gorm.DB) SubscriptionPlanRepository {
	return &SubscriptionPlanRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SubscriptionPlan, models.SubscriptionPlanFilter](db),
	}
}

// ByName finds a plan by its unique name
func (r *SubscriptionPlanRepositoryImpl) ByName(ctx context.Context, name string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.getDB(ctx).Where("name = ?", name).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// ByFilter retrieves plans based on filter criteria
func (r *SubscriptionPlanRepositoryImpl) ByFilter(ctx context.Context, filter models.SubscriptionPlanFilter, orderBy string, limit, offset int) ([]*models.SubscriptionPlan, error) {
	query := r.getDB(ctx).Model(&models.SubscriptionPlan{})
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}

	if orderBy == "" {
		orderBy = "id ASC"
	}
	query = query.Order(orderBy)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var plans []*models.SubscriptionPlan
	if err := query.Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscription plans: %w", err)
	}
	return plans, nil
}
