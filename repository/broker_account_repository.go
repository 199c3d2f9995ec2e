package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/cotizabot/cotizabot/models"
	"github.com/cotizabot/cotizabot/utils"
	"gorm.io/gorm"
)

// BrokerAccountRepositoryImpl implements BrokerAccountRepository interface
type BrokerAccountRepositoryImpl struct {
	*BaseRepository[models.BrokerAccount, models.BrokerAccountFilter]
}

// NewBrokerAccountRepository creates a new broker account repository
func NewBrokerAccountRepository(db *gorm.DB) BrokerAccountRepository {
	return &BrokerAccountRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BrokerAccount, models.BrokerAccountFilter](db),
	}
}

// ByBrokerID finds the account of a broker
func (r *BrokerAccountRepositoryImpl) ByBrokerID(ctx context.Context, brokerID uint) (*models.BrokerAccount, error) {
	var account models.BrokerAccount
	err := r.getDB(ctx).Where("broker_id = ?", brokerID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// ByIDForUpdate locks an account row; every ledger append goes through this lock
func (r *BrokerAccountRepositoryImpl) ByIDForUpdate(ctx context.Context, id uint) (*models.BrokerAccount, error) {
	return r.byIDForUpdate(ctx, id)
}

// ByBrokerIDForUpdate locks the account row of a broker
func (r *BrokerAccountRepositoryImpl) ByBrokerIDForUpdate(ctx context.Context, brokerID uint) (*models.BrokerAccount, error) {
	var account models.BrokerAccount
	err := r.forUpdate(ctx).Where("broker_id = ?", brokerID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock account of broker %d: %w", brokerID, err)
	}
	return &account, nil
}

// Update persists the ledger header
func (r *BrokerAccountRepositoryImpl) Update(ctx context.Context, account *models.BrokerAccount) error {
	if account == nil || account.ID == 0 {
		return errors.New("broker account ID is required for update")
	}
	account.UpdatedAt = utils.UTCNow()
	return r.update(ctx, account)
}

// ListIDsForMonthlyCharge returns every account that is not suspended
func (r *BrokerAccountRepositoryImpl) ListIDsForMonthlyCharge(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.getDB(ctx).Model(&models.BrokerAccount{}).
		Where("account_status <> ?", models.AccountStatusSuspended).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for monthly charge: %w", err)
	}
	return ids, nil
}

// ListIDsForOverdueCheck returns owing accounts that have not been suspended yet
func (r *BrokerAccountRepositoryImpl) ListIDsForOverdueCheck(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.getDB(ctx).Model(&models.BrokerAccount{}).
		Where("account_status IN ? AND current_balance < 0", []models.AccountStatus{
			models.AccountStatusActive,
			models.AccountStatusOverdue,
			models.AccountStatusGracePeriod,
		}).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for overdue check: %w", err)
	}
	return ids, nil
}

// ByFilter retrieves accounts based on filter criteria
func (r *BrokerAccountRepositoryImpl) ByFilter(ctx context.Context, filter models.BrokerAccountFilter, orderBy string, limit, offset int) ([]*models.BrokerAccount, error) {
	query := r.getDB(ctx).Model(&models.BrokerAccount{})
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.BrokerID != nil {
		query = query.Where("broker_id = ?", *filter.BrokerID)
	}
	if filter.AccountNumber != nil {
		query = query.Where("account_number = ?", *filter.AccountNumber)
	}
	if filter.AccountStatus != nil {
		query = query.Where("account_status = ?", *filter.AccountStatus)
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

	var accounts []*models.BrokerAccount
	if err := query.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list broker accounts: %w", err)
	}
	return accounts, nil
}
