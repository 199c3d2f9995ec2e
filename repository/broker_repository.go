package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/cotizabot/cotizabot/models"
	"github.com/cotizabot/cotizabot/utils"
	"gorm.io/gorm"
)

// BrokerRepositoryImpl implements BrokerRepository interface
type BrokerRepositoryImpl struct {
	*BaseRepository[models.Broker, models.BrokerFilter]
}

// NewBrokerRepository creates a new broker repository
func NewBrokerRepository(db *gorm.DB) BrokerRepository {
	return &BrokerRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Broker, models.BrokerFilter](db),
	}
}

func (r *BrokerRepositoryImpl) applyFilter(query *gorm.DB, filter models.BrokerFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Phone != nil {
		query = query.Where("phone = ?", *filter.Phone)
	}
	if filter.SubscriptionStatus != nil {
		query = query.Where("subscription_status = ?", *filter.SubscriptionStatus)
	}
	if filter.SubscriptionPlanID != nil {
		query = query.Where("subscription_plan_id = ?", *filter.SubscriptionPlanID)
	}
	return query
}

// ByFilter retrieves brokers based on filter criteria
func (r *BrokerRepositoryImpl) ByFilter(ctx context.Context, filter models.BrokerFilter, orderBy string, limit, offset int) ([]*models.Broker, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Broker{}), filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var brokers []*models.Broker
	if err := query.Find(&brokers).Error; err != nil {
		return nil, fmt.Errorf("failed to list brokers: %w", err)
	}

	return brokers, nil
}

// Update persists a broker profile
func (r *BrokerRepositoryImpl) Update(ctx context.Context, broker *models.Broker) error {
	if broker == nil || broker.ID == 0 {
		return errors.New("broker ID is required for update")
	}
	broker.UpdatedAt = utils.UTCNow()
	return r.update(ctx, broker)
}

// ListEligibleForAssignment returns active brokers with quota left, least loaded first
func (r *BrokerRepositoryImpl) ListEligibleForAssignment(ctx context.Context, limit int) ([]*models.Broker, error) {
	query := r.getDB(ctx).
		Where("subscription_status = ? AND current_month_leads < monthly_lead_quota", models.SubscriptionStatusActive).
		Order("current_month_leads ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var brokers []*models.Broker
	if err := query.Find(&brokers).Error; err != nil {
		return nil, fmt.Errorf("failed to list eligible brokers: %w", err)
	}

	return brokers, nil
}

// IncrementLeadCountIfBelowQuota bumps current_month_leads only while the broker is still eligible
func (r *BrokerRepositoryImpl) IncrementLeadCountIfBelowQuota(ctx context.Context, brokerID uint) (bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
	}
	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	res := db.Model(&models.Broker{}).
		Where("id = ? AND subscription_status = ? AND current_month_leads < monthly_lead_quota", brokerID, models.SubscriptionStatusActive).
		Updates(map[string]any{
			"current_month_leads": gorm.Expr("current_month_leads + 1"),
			"updated_at":          utils.UTCNow(),
		})
	if err = res.Error; err != nil {
		return false, fmt.Errorf("failed to increment lead count for broker %d: %w", brokerID, err)
	}

	return res.RowsAffected == 1, nil
}

// UpdateSubscription sets the subscription status and, when planID is non-nil, the plan
func (r *BrokerRepositoryImpl) UpdateSubscription(ctx context.Context, brokerID uint, status models.SubscriptionStatus, planID *uint) error {
	updates := map[string]any{
		"subscription_status": status,
		"updated_at":          utils.UTCNow(),
	}
	if planID != nil {
		updates["subscription_plan_id"] = *planID
	}
	return r.updateColumns(ctx, brokerID, updates)
}

// SetLoginActive enables or disables the broker's ability to log in
func (r *BrokerRepositoryImpl) SetLoginActive(ctx context.Context, brokerID uint, active bool) error {
	return r.updateColumns(ctx, brokerID, map[string]any{
		"login_active": active,
		"updated_at":   utils.UTCNow(),
	})
}

func (r *BrokerRepositoryImpl) updateColumns(ctx context.Context, brokerID uint, updates map[string]any) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	res := db.Model(&models.Broker{}).Where("id = ?", brokerID).Updates(updates)
	if err = res.Error; err != nil {
		return fmt.Errorf("failed to update broker %d: %w", brokerID, err)
	}
	if res.RowsAffected == 0 {
		err = gorm.ErrRecordNotFound
		return err
	}

	return nil
}
