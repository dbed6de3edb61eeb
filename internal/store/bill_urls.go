package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/models"
)

// maxReasonRunes bounds last_error.
const maxReasonRunes = 1000

type BillURLRepository struct {
	db *gorm.DB
}

func NewBillURLRepository(db *gorm.DB) *BillURLRepository {
	return &BillURLRepository{db: db}
}

var billURLKey = []clause.Column{
	{Name: "account_id"},
	{Name: "type"},
	{Name: "date"},
}

// SaveDownloadURL upserts the record of (account, type, date) with the URL the
// provider just issued. An existing record keeps its local file; its URL,
// status and response are overwritten.
func (r *BillURLRepository) SaveDownloadURL(
	ctx context.Context,
	accountID uint,
	billType models.BillType,
	date string,
	downloadURL string,
	response []byte,
) (*models.BillURL, error) {
	record := &models.BillURL{
		AccountID:   accountID,
		Type:        billType,
		Date:        date,
		DownloadURL: downloadURL,
		Status:      models.BillStatusQueried,
		Response:    datatypes.JSON(response),
	}
	err := r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: billURLKey,
		DoUpdates: clause.AssignmentColumns([]string{
			"download_url",
			"status",
			"last_error",
			"response",
			"updated_at",
		}),
	}).Create(record).Error
	if err != nil {
		return nil, fmt.Errorf("upsert bill url %d/%s/%s: %w", accountID, billType, date, err)
	}
	return r.Find(ctx, accountID, billType, date)
}

// MarkStored records the blob key of a fetched archive.
func (r *BillURLRepository) MarkStored(ctx context.Context, record *models.BillURL, localFile string) error {
	err := r.db.WithContext(ctx).Model(record).Updates(map[string]any{
		"local_file": localFile,
		"status":     models.BillStatusStored,
		"last_error": "",
	}).Error
	if err != nil {
		return fmt.Errorf("mark bill url %d stored: %w", record.ID, err)
	}
	record.LocalFile = &localFile
	record.Status = models.BillStatusStored
	record.LastError = ""
	return nil
}

// MarkFailed records a failed fetch or blob write. The download URL and any
// previous local file are kept.
func (r *BillURLRepository) MarkFailed(
	ctx context.Context,
	record *models.BillURL,
	status models.BillStatus,
	reason string,
) error {
	if utf8.RuneCountInString(reason) > maxReasonRunes {
		reason = string([]rune(reason)[:maxReasonRunes])
	}
	err := r.db.WithContext(ctx).Model(record).Updates(map[string]any{
		"status":     status,
		"last_error": reason,
	}).Error
	if err != nil {
		return fmt.Errorf("mark bill url %d %s: %w", record.ID, status, err)
	}
	record.Status = status
	record.LastError = reason
	return nil
}

func (r *BillURLRepository) Find(
	ctx context.Context,
	accountID uint,
	billType models.BillType,
	date string,
) (*models.BillURL, error) {
	var record models.BillURL
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND type = ? AND date = ?", accountID, billType, date).
		First(&record).Error
	if err != nil {
		return nil, fmt.Errorf("find bill url %d/%s/%s: %w", accountID, billType, date, notFound(err))
	}
	return &record, nil
}

// ListByDate returns the records of one day with their accounts loaded.
func (r *BillURLRepository) ListByDate(ctx context.Context, date string) ([]models.BillURL, error) {
	var records []models.BillURL
	err := r.db.WithContext(ctx).
		Preload("Account").
		Where("date = ?", date).
		Order("account_id").
		Order("type").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list bill urls of %s: %w", date, err)
	}
	return records, nil
}

func (r *BillURLRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.BillURL{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count bill urls: %w", err)
	}
	return n, nil
}
