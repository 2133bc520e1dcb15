package charge

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/gridledger/accounting/internal/model"
)

func TestBelowThresholdsInterval(t *testing.T) {
	th := Thresholds{MinChargingInterval: 5 * time.Minute, MinChargingAmount: decimal.Zero}
	start := time.Now()
	assert.True(t, belowThresholds(start, start.Add(time.Minute), decimal.NewFromInt(100), th))
	assert.False(t, belowThresholds(start, start.Add(10*time.Minute), decimal.NewFromInt(100), th))
}

func TestBelowThresholdsAmount(t *testing.T) {
	th := Thresholds{MinChargingInterval: 0, MinChargingAmount: decimal.NewFromFloat(1.0)}
	start := time.Now()
	assert.True(t, belowThresholds(start, start.Add(time.Hour), decimal.NewFromFloat(0.5), th))
	assert.False(t, belowThresholds(start, start.Add(time.Hour), decimal.NewFromFloat(2), th))
}

func TestPriceIDPtrNilSafe(t *testing.T) {
	assert.Nil(t, priceIDPtr(nil))
	p := &model.Price{ID: 7}
	assert.Equal(t, int64(7), *priceIDPtr(p))
}

func TestDiscountIDPtrNilSafe(t *testing.T) {
	assert.Nil(t, discountIDPtr(nil))
	d := &model.Discount{ID: 3}
	assert.Equal(t, int64(3), *discountIDPtr(d))
}

func TestApplyDiscountNilIsNoOp(t *testing.T) {
	total := decimal.NewFromInt(100)
	assert.True(t, applyDiscount(total, nil).Equal(total))
}

func TestApplyDiscountReducesByFraction(t *testing.T) {
	total := decimal.NewFromInt(100)
	d := &model.Discount{Discount: decimal.NewFromFloat(0.2)}
	assert.True(t, applyDiscount(total, d).Equal(decimal.NewFromInt(80)), "a 20%% discount must bill 80%% of total, not 20%%")
}

func TestRecordChargeResultSkipsSkippedAndUncased(t *testing.T) {
	// These must not panic; Prometheus registration happens at package
	// init, so calling the unexported helper directly exercises the
	// label-cardinality path without needing a running engine.
	recordChargeResult(model.ServiceOneshot, Result{Skipped: true, Case: "finished_uncharged"})
	recordChargeResult(model.ServiceOneshot, Result{Case: ""})
	recordChargeResult(model.ServiceLongrun, Result{Case: "unfinished_uncharged", Total: decimal.NewFromInt(-5)})
}
