package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// BillStatus tracks how far a record got in the download pipeline.
type BillStatus string

const (
	// BillStatusQueried means the provider issued a download URL and nothing was fetched yet.
	BillStatusQueried     BillStatus = "queried"
	BillStatusFetchFailed BillStatus = "fetch_failed"
	BillStatusStoreFailed BillStatus = "store_failed"
	BillStatusStored      BillStatus = "stored"
)

// BillURL is the download record of one account, bill type and day.
type BillURL struct {
	ID          uint           `gorm:"primaryKey;autoIncrement"                                                      json:"id"`
	AccountID   uint           `gorm:"not null;uniqueIndex:alipay_trade_bill_url_idx_uniq,priority:1"                json:"account_id"`
	Account     *Account       `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"                              json:"account,omitempty"`
	Type        BillType       `gorm:"type:varchar(40);not null;uniqueIndex:alipay_trade_bill_url_idx_uniq,priority:2" json:"type"`
	Date        string         `gorm:"type:char(10);not null;uniqueIndex:alipay_trade_bill_url_idx_uniq,priority:3;index" json:"date"`
	DownloadURL string         `gorm:"type:varchar(1000);not null"                                                   json:"download_url"`
	LocalFile   *string        `gorm:"type:varchar(1000)"                                                            json:"local_file"`
	Status      BillStatus     `gorm:"type:varchar(20);not null;default:queried"                                     json:"status"`
	LastError   string         `gorm:"type:varchar(1000)"                                                            json:"last_error,omitempty"`
	Response    datatypes.JSON `json:"response,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"                                                                json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"                                                                json:"updated_at"`
}

func (BillURL) TableName() string {
	return "alipay_trade_bill_url"
}

func (b BillURL) String() string {
	if b.ID == 0 {
		return ""
	}
	return fmt.Sprintf("%d - %s - %s", b.AccountID, b.Type, b.Date)
}

// Stored reports whether the archive has been written to the blob store.
func (b BillURL) Stored() bool {
	return b.LocalFile != nil && *b.LocalFile != ""
}
