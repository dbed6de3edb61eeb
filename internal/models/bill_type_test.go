package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillTypeValues(t *testing.T) {
	assert.Equal(t, "trade", BillTypeTrade.String())
	assert.Equal(t, "signcustomer", BillTypeSignCustomer.String())
	assert.Equal(t, "merchant_act", BillTypeMerchantAct.String())
	assert.Equal(t, "settlementMerge", BillTypeSettlementMerge.String())
}

func TestBillTypeLabels(t *testing.T) {
	assert.Equal(t, "商户基于支付宝交易收单的业务账单", BillTypeTrade.Label())
	assert.Equal(t, "基于商户支付宝余额收入及支出等资金变动的账务账单", BillTypeSignCustomer.Label())
	assert.Equal(t, "营销活动账单，包含营销活动的发放，核销记录", BillTypeMerchantAct.Label())
	assert.Equal(t, "每日结算到卡的资金对应的明细，下载内容包含批次结算到卡明细文件", BillTypeSettlementMerge.Label())
}

func TestBillTypesCoverTable(t *testing.T) {
	types := BillTypes()
	require.Len(t, types, 4)
	seen := map[string]bool{}
	for _, bt := range types {
		assert.NotEmpty(t, bt.String())
		assert.NotEmpty(t, bt.Label())
		assert.False(t, seen[bt.String()], "duplicate value %s", bt)
		seen[bt.String()] = true
	}
}

func TestParseBillType(t *testing.T) {
	for _, bt := range BillTypes() {
		got, err := ParseBillType(bt.String())
		require.NoError(t, err)
		assert.Equal(t, bt, got)
	}

	_, err := ParseBillType("TRADE")
	require.ErrorIs(t, err, ErrUnknownBillType)
}

func TestBillTypeScan(t *testing.T) {
	var bt BillType
	require.NoError(t, bt.Scan([]byte("merchant_act")))
	assert.Equal(t, BillTypeMerchantAct, bt)

	require.NoError(t, bt.Scan("settlementMerge"))
	assert.Equal(t, BillTypeSettlementMerge, bt)

	assert.Error(t, bt.Scan(42))
	assert.ErrorIs(t, bt.Scan("nope"), ErrUnknownBillType)
}

func TestInvalidBillType(t *testing.T) {
	bt := billTypeCount
	assert.False(t, bt.Valid())
	assert.Empty(t, bt.Label())
	_, err := bt.Value()
	assert.ErrorIs(t, err, ErrUnknownBillType)
}

func TestBillURLStored(t *testing.T) {
	key := "alipay-bill/2026/10/18/trade-x.zip"
	empty := ""
	assert.False(t, BillURL{}.Stored())
	assert.False(t, BillURL{LocalFile: &empty}.Stored())
	assert.True(t, BillURL{LocalFile: &key}.Stored())
}
