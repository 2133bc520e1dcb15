package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUsesDefaultHTTPStatus(t *testing.T) {
	err := New(CodeInsufficientFunds, "not enough funds")
	assert.Equal(t, CodeInsufficientFunds, err.Code)
	assert.Equal(t, http.StatusPaymentRequired, err.HTTPStatus)
	assert.Equal(t, "INSUFFICIENT_FUNDS: not enough funds", err.Error())
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(CodeInvalidRequest, "amount %s is negative", "-5")
	assert.Equal(t, "amount -5 is negative", err.Message)
}

func TestWithDetailsAttachesAndChains(t *testing.T) {
	err := New(CodeInsufficientFunds, "nope").WithDetails(map[string]any{"available_balance": "1.00000"})
	assert.Equal(t, "1.00000", err.Details["available_balance"])
}

func TestNotFound(t *testing.T) {
	err := NotFound("project")
	assert.Equal(t, CodeEntityNotFound, err.Code)
	assert.Equal(t, "project not found", err.Message)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
}

func TestAsError(t *testing.T) {
	wrapped := fmt.Errorf("wrap: %w", New(CodeJobAlreadyStarted, "already started"))
	_, ok := AsError(wrapped)
	assert.False(t, ok, "AsError only unwraps a bare *Error, not one hidden behind fmt.Errorf %%w")

	plain := New(CodeJobAlreadyStarted, "already started")
	got, ok := AsError(plain)
	assert.True(t, ok)
	assert.Equal(t, plain, got)
}
