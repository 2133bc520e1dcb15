package api

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/gridledger/accounting/internal/model"
)

func TestToAccountResponseFormatsBalanceAtDisplayScale(t *testing.T) {
	a := &model.Account{
		ID:      uuid.New(),
		Type:    model.AccountPROJ,
		Name:    "proj-1",
		Balance: decimal.NewFromFloat(12.3),
		Enabled: true,
	}
	got := toAccountResponse(a)
	assert.Equal(t, "12.30000", got.Balance)
	assert.Equal(t, model.AccountPROJ, got.Type)
	assert.Nil(t, got.ParentID)
}

func TestToPriceResponseFormatsDecimals(t *testing.T) {
	p := &model.Price{
		ID:             1,
		ServiceType:    model.ServiceLongrun,
		ServiceSubtype: "gpu",
		ValidFrom:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		FixedCost:      decimal.NewFromFloat(0.5),
		Multiplier:     decimal.NewFromFloat(1.25),
	}
	got := toPriceResponse(p)
	assert.Equal(t, "0.50000", got.FixedCost)
	assert.Equal(t, "1.25000", got.Multiplier)
	assert.Nil(t, got.VlabID)
}

func TestToDiscountResponseFormatsDecimal(t *testing.T) {
	vlab := uuid.New()
	d := &model.Discount{
		ID:        2,
		VlabID:    &vlab,
		ValidFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Discount:  decimal.NewFromFloat(0.9),
	}
	got := toDiscountResponse(d)
	assert.Equal(t, "0.90000", got.Discount)
	assert.Equal(t, vlab, *got.VlabID)
}

func TestToJobResponseCopiesIdentifyingFields(t *testing.T) {
	j := &model.Job{
		ID:             uuid.New(),
		VlabID:         uuid.New(),
		ProjID:         uuid.New(),
		ServiceType:    model.ServiceOneshot,
		ServiceSubtype: "cpu",
	}
	got := toJobResponse(j)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, j.ServiceType, got.ServiceType)
	assert.Equal(t, j.ServiceSubtype, got.ServiceSubtype)
}
