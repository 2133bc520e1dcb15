package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealNowIsUTC(t *testing.T) {
	now := Real{}.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, time.Now(), now, time.Second)
}

func TestFixedNowReturnsConfiguredInstant(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := Fixed{At: at}
	assert.True(t, f.Now().Equal(at))
	assert.True(t, f.Now().Equal(at), "Fixed.Now must be stable across calls")
}

func TestClockInterfaceSatisfiedByBoth(t *testing.T) {
	var _ Clock = Real{}
	var _ Clock = Fixed{}
}
