package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/models"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// ListValid returns the accounts the download job should process, ordered by id.
func (r *AccountRepository) ListValid(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := r.db.WithContext(ctx).Where("valid = ?", true).Order("id").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("list valid accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := r.db.WithContext(ctx).Order("id").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) GetByAppID(ctx context.Context, appID string) (models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("app_id = ?", appID).First(&account).Error; err != nil {
		return models.Account{}, fmt.Errorf("get account %s: %w", appID, notFound(err))
	}
	return account, nil
}

// Save inserts the account or, when the app id exists, replaces its name, keys and validity.
func (r *AccountRepository) Save(ctx context.Context, account *models.Account) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "app_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"rsa_private_key",
			"rsa_public_key",
			"valid",
			"updated_at",
		}),
	}).Create(account).Error
	if err != nil {
		return fmt.Errorf("save account %s: %w", account.AppID, err)
	}
	if err := r.db.WithContext(ctx).Where("app_id = ?", account.AppID).First(account).Error; err != nil {
		return fmt.Errorf("reload account %s: %w", account.AppID, err)
	}
	return nil
}

func (r *AccountRepository) SetValid(ctx context.Context, appID string, valid bool) error {
	res := r.db.WithContext(ctx).Model(&models.Account{}).Where("app_id = ?", appID).Update("valid", valid)
	if res.Error != nil {
		return fmt.Errorf("update account %s: %w", appID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update account %s: %w", appID, ErrNotFound)
	}
	return nil
}
