package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRound(t *testing.T) {
	got := Round(dec("1.123456789"))
	assert.Equal(t, "1.123457", got.StringFixed(Scale))
}

func TestString(t *testing.T) {
	assert.Equal(t, "10.000000", String(dec("10")))
	assert.Equal(t, "0.000000", String(Zero))
}

func TestMinMax(t *testing.T) {
	a, b := dec("3"), dec("5")
	assert.True(t, Min(a, b).Equal(a))
	assert.True(t, Max(a, b).Equal(b))
	assert.True(t, Min(b, a).Equal(a))
	assert.True(t, Max(b, a).Equal(b))
}

func TestMaxZero(t *testing.T) {
	assert.True(t, MaxZero(dec("-5")).Equal(Zero))
	assert.True(t, MaxZero(dec("5")).Equal(dec("5")))
	assert.True(t, MaxZero(Zero).Equal(Zero))
}

func TestIsPositiveIsNegative(t *testing.T) {
	assert.True(t, IsPositive(dec("0.00001")))
	assert.False(t, IsPositive(Zero))
	assert.False(t, IsPositive(dec("-1")))

	assert.True(t, IsNegative(dec("-0.00001")))
	assert.False(t, IsNegative(Zero))
	assert.False(t, IsNegative(dec("1")))
}
