package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/cotizabot/cotizabot/models"
	"gorm.io/gorm"
)

// LeadQuoteSnapshotRepositoryImpl implements LeadQuoteSnapshotRepository interface
type LeadQuoteSnapshotRepositoryImpl struct {
	*BaseRepository[models.LeadQuoteSnapshot, struct{}]
}

// NewLeadQuoteSnapshotRepository creates a new lead quote snapshot repository
func NewLeadQuoteSnapshotRepository(db *gorm.DB) LeadQuoteSnapshotRepository {
	return &LeadQuoteSnapshotRepositoryImpl{
		BaseRepository: NewBaseRepository[models.LeadQuoteSnapshot, struct{}](db),
	}
}

// LatestByLead returns the most recent snapshot shown to a lead
func (r *LeadQuoteSnapshotRepositoryImpl) LatestByLead(ctx context.Context, leadID uint) (*models.LeadQuoteSnapshot, error) {
	var snapshot models.LeadQuoteSnapshot
	err := r.getDB(ctx).Where("lead_id = ?", leadID).Order("id DESC").First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find latest quote snapshot for lead %d: %w", leadID, err)
	}
	return &snapshot, nil
}

// ListByLead returns the full quote history of a lead, oldest first
func (r *LeadQuoteSnapshotRepositoryImpl) ListByLead(ctx context.Context, leadID uint) ([]*models.LeadQuoteSnapshot, error) {
	var snapshots []*models.LeadQuoteSnapshot
	err := r.getDB(ctx).Where("lead_id = ?", leadID).Order("id ASC").Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list quote snapshots for lead %d: %w", leadID, err)
	}
	return snapshots, nil
}
