package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

var ErrUnknownBillType = errors.New("unknown bill type")

// BillType is a bill category served by the download URL query API.
type BillType uint8

const (
	BillTypeTrade BillType = iota
	BillTypeSignCustomer
	BillTypeMerchantAct
	BillTypeSettlementMerge

	billTypeCount
)

type billTypeInfo struct {
	value string
	label string
}

var billTypes = [billTypeCount]billTypeInfo{
	BillTypeTrade:           {value: "trade", label: "商户基于支付宝交易收单的业务账单"},
	BillTypeSignCustomer:    {value: "signcustomer", label: "基于商户支付宝余额收入及支出等资金变动的账务账单"},
	BillTypeMerchantAct:     {value: "merchant_act", label: "营销活动账单，包含营销活动的发放，核销记录"},
	BillTypeSettlementMerge: {value: "settlementMerge", label: "每日结算到卡的资金对应的明细，下载内容包含批次结算到卡明细文件"},
}

// BillTypes returns every bill type in declaration order.
func BillTypes() []BillType {
	types := make([]BillType, 0, billTypeCount)
	for t := BillType(0); t < billTypeCount; t++ {
		types = append(types, t)
	}
	return types
}

// ParseBillType resolves the wire value ("trade", "signcustomer", ...).
func ParseBillType(s string) (BillType, error) {
	for i, info := range billTypes {
		if info.value == s {
			return BillType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBillType, s)
}

func (t BillType) Valid() bool {
	return t < billTypeCount
}

// String returns the value sent to the provider.
func (t BillType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("BillType(%d)", uint8(t))
	}
	return billTypes[t].value
}

func (t BillType) Label() string {
	if !t.Valid() {
		return ""
	}
	return billTypes[t].label
}

func (t BillType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBillType, uint8(t))
	}
	return billTypes[t].value, nil
}

func (t *BillType) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("scan bill type from %T", src)
	}
	parsed, err := ParseBillType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t BillType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBillType, uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *BillType) UnmarshalText(b []byte) error {
	parsed, err := ParseBillType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
