package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatermarkOrEpochReturnsWatermarkWhenSet(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, watermarkOrEpoch(&at).Equal(at))
}

func TestWatermarkOrEpochFallsBackToUnixEpoch(t *testing.T) {
	got := watermarkOrEpoch(nil)
	assert.True(t, got.Equal(time.Unix(0, 0).UTC()), "a never-run task must start scanning from the epoch")
}
