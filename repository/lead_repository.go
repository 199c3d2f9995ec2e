package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cotizabot/cotizabot/models"
	"github.com/cotizabot/cotizabot/utils"
	"gorm.io/gorm"
)

// LeadRepositoryImpl implements LeadRepository interface
type LeadRepositoryImpl struct {
	*BaseRepository[models.Lead, models.LeadFilter]
}

// NewLeadRepository creates a new lead repository
func NewLeadRepository(db *gorm.DB) LeadRepository {
	return &LeadRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Lead, models.LeadFilter](db),
	}
}

// ByPhone finds a lead by the phone number it was captured from
func (r *LeadRepositoryImpl) ByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	var lead models.Lead
	err := r.getDB(ctx).Where("phone = ?", phone).Last(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lead, nil
}

// ByIDForUpdate finds a lead and locks its row for the rest of the transaction
func (r *LeadRepositoryImpl) ByIDForUpdate(ctx context.Context, id uint) (*models.Lead, error) {
	return r.byIDForUpdate(ctx, id)
}

// ByFilter retrieves leads based on filter criteria
func (r *LeadRepositoryImpl) ByFilter(ctx context.Context, filter models.LeadFilter, orderBy string, limit, offset int) ([]*models.Lead, error) {
	query := r.getDB(ctx).Model(&models.Lead{})

	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Phone != nil {
		query = query.Where("phone = ?", *filter.Phone)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.AssignedBrokerID != nil {
		query = query.Where("assigned_broker_id = ?", *filter.AssignedBrokerID)
	}

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

	var leads []*models.Lead
	if err := query.Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}

	return leads, nil
}

// Update persists intake fields of a lead. Assignment columns are written only through
// AssignIfUnassigned and UnassignByBroker.
func (r *LeadRepositoryImpl) Update(ctx context.Context, lead *models.Lead) error {
	if lead == nil || lead.ID == 0 {
		return errors.New("lead ID is required for update")
	}

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

	lead.UpdatedAt = utils.UTCNow()
	err = db.Model(lead).
		Select("name", "vehicle_make", "vehicle_model", "vehicle_year", "insured_value",
			"status", "selected_insurer_id", "selected_coverage_type", "selected_monthly_premium", "updated_at").
		Updates(lead).Error
	if err != nil {
		return fmt.Errorf("failed to update lead %d: %w", lead.ID, err)
	}

	return nil
}

// AssignIfUnassigned is a compare-and-swap on assigned_broker_id. SLA deadlines are only
// written the first time a lead is ever assigned.
func (r *LeadRepositoryImpl) AssignIfUnassigned(ctx context.Context, leadID, brokerID uint, assignedAt, firstContactDeadline, reassignmentDeadline time.Time) (bool, error) {
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

	res := db.Model(&models.Lead{}).
		Where("id = ? AND assigned_broker_id IS NULL", leadID).
		Updates(map[string]any{
			"assigned_broker_id":         brokerID,
			"status":                     models.LeadStatusAssignedToBroker,
			"assigned_at":                assignedAt,
			"sla_first_contact_deadline": gorm.Expr("COALESCE(sla_first_contact_deadline, ?)", firstContactDeadline),
			"sla_reassignment_deadline":  gorm.Expr("COALESCE(sla_reassignment_deadline, ?)", reassignmentDeadline),
			"updated_at":                 utils.UTCNow(),
		})
	if err = res.Error; err != nil {
		return false, fmt.Errorf("failed to assign lead %d: %w", leadID, err)
	}

	return res.RowsAffected == 1, nil
}

// UnassignByBroker returns every lead owned by a broker to the unassigned pool
func (r *LeadRepositoryImpl) UnassignByBroker(ctx context.Context, brokerID uint) (int64, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
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

	res := db.Model(&models.Lead{}).
		Where("assigned_broker_id = ?", brokerID).
		Updates(map[string]any{
			"assigned_broker_id": nil,
			"assigned_at":        nil,
			"status":             models.LeadStatusQuotedNoPreference,
			"updated_at":         utils.UTCNow(),
		})
	if err = res.Error; err != nil {
		return 0, fmt.Errorf("failed to unassign leads of broker %d: %w", brokerID, err)
	}

	return res.RowsAffected, nil
}
