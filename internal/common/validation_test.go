package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptorRules(t *testing.T) {
	v := NewValidator().
		Field("code", "600000.SH", Required, StockCode).
		Field("date", "2024-03-30", Required, ISODate).
		Field("url", "https://static.cninfo.com.cn/finalpage/2024-03-30/1219.PDF", Required, HTTPURL)
	assert.False(t, v.HasErrors(), v.ErrorMessage())

	v = NewValidator().
		Field("code", "60000", StockCode).
		Field("date", "2024/03/30", ISODate).
		Field("url", "finalpage/1219.PDF", HTTPURL).
		Field("name", "  ", Required)
	assert.Len(t, v.Errors(), 4)
	assert.ErrorIs(t, v.Error(), ErrInvalidInput)
}

func TestStockCodeAllowsEmpty(t *testing.T) {
	assert.Nil(t, StockCode("code", ""))
	assert.NotNil(t, Required("code", ""))
}
