package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/cotizabot/cotizabot/models"
	"gorm.io/gorm"
)

// BrokerTransactionRepositoryImpl implements BrokerTransactionRepository interface.
// Entries are immutable, so there is no update or delete.
type BrokerTransactionRepositoryImpl struct {
	*BaseRepository[models.BrokerTransaction, models.BrokerTransactionFilter]
}

// NewBrokerTransactionRepository creates a new broker transaction repository
func NewBrokerTransactionRepository(db *gorm.DB) BrokerTransactionRepository {
	return &BrokerTransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BrokerTransaction, models.BrokerTransactionFilter](db),
	}
}

// ListByAccount returns the ledger of an account in append order
func (r *BrokerTransactionRepositoryImpl) ListByAccount(ctx context.Context, accountID uint) ([]*models.BrokerTransaction, error) {
	var txs []*models.BrokerTransaction
	err := r.getDB(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC, id ASC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions of account %d: %w", accountID, err)
	}
	return txs, nil
}

// Latest returns the last entry appended to an account
func (r *BrokerTransactionRepositoryImpl) Latest(ctx context.Context, accountID uint) (*models.BrokerTransaction, error) {
	var tx models.BrokerTransaction
	err := r.getDB(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find latest transaction of account %d: %w", accountID, err)
	}
	return &tx, nil
}
