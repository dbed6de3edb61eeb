package models

import (
	"fmt"
	"time"
)

// Account holds the open-platform credentials of one Alipay application.
type Account struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"                  json:"id"`
	Name          string    `gorm:"type:varchar(100);not null"                json:"name"            toml:"name"            validate:"required,max=100"`
	AppID         string    `gorm:"type:varchar(64);not null;uniqueIndex"     json:"app_id"          toml:"app_id"          validate:"required,max=64"`
	RSAPrivateKey string    `gorm:"type:text;not null"                        json:"-"               toml:"rsa_private_key" validate:"required"`
	RSAPublicKey  string    `gorm:"type:text"                                 json:"-"               toml:"rsa_public_key"  validate:"required"`
	Valid         bool      `gorm:"not null;default:false;index"              json:"valid"           toml:"valid"`
	CreatedAt     time.Time `gorm:"autoCreateTime"                            json:"created_at"      toml:"-"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"                            json:"updated_at"      toml:"-"`
}

func (Account) TableName() string {
	return "alipay_account"
}

func (a Account) String() string {
	return fmt.Sprintf("%s(%s)", a.Name, a.AppID)
}
