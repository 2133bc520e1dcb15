package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobIsTerminal(t *testing.T) {
	j := &Job{}
	assert.False(t, j.IsTerminal())

	finished := time.Now()
	j.FinishedAt = &finished
	assert.True(t, j.IsTerminal())
}
