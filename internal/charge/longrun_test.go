package charge

import (
	"testing"
	"time"

	"github.com/gridledger/accounting/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestClassifyLongrunRequiresStartedAt(t *testing.T) {
	job := &model.Job{}
	_, ok := classifyLongrun(job, time.Now(), time.Hour)
	assert.False(t, ok)
}

func TestClassifyLongrunUnfinishedUncharged(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := started.Add(10 * time.Minute)
	job := &model.Job{StartedAt: &started}
	kase, ok := classifyLongrun(job, now, time.Hour)
	assert.True(t, ok)
	assert.Equal(t, caseUnfinishedUncharged, kase)
}

func TestClassifyLongrunExpiredUncharged(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := started.Add(2 * time.Hour)
	job := &model.Job{StartedAt: &started}
	kase, ok := classifyLongrun(job, now, time.Hour)
	assert.True(t, ok)
	assert.Equal(t, caseExpiredUncharged, kase)
}

func TestClassifyLongrunUnfinishedChargedUsesLastAlive(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lastCharged := started.Add(30 * time.Minute)
	lastAlive := started.Add(40 * time.Minute)
	now := lastAlive.Add(5 * time.Minute)
	job := &model.Job{StartedAt: &started, LastChargedAt: &lastCharged, LastAliveAt: &lastAlive}
	kase, ok := classifyLongrun(job, now, time.Hour)
	assert.True(t, ok)
	assert.Equal(t, caseUnfinishedCharged, kase)
}

func TestClassifyLongrunExpiredChargedWhenStale(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lastCharged := started.Add(30 * time.Minute)
	lastAlive := started.Add(31 * time.Minute)
	now := lastAlive.Add(2 * time.Hour)
	job := &model.Job{StartedAt: &started, LastChargedAt: &lastCharged, LastAliveAt: &lastAlive}
	kase, ok := classifyLongrun(job, now, time.Hour)
	assert.True(t, ok)
	assert.Equal(t, caseExpiredCharged, kase)
}

func TestClassifyLongrunFinishedUncharged(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	finished := started.Add(time.Hour)
	job := &model.Job{StartedAt: &started, FinishedAt: &finished}
	kase, ok := classifyLongrun(job, finished.Add(time.Minute), time.Hour)
	assert.True(t, ok)
	assert.Equal(t, caseFinishedUncharged, kase)
}

func TestClassifyLongrunFinishedCharged(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lastCharged := started.Add(30 * time.Minute)
	finished := started.Add(time.Hour)
	job := &model.Job{StartedAt: &started, LastChargedAt: &lastCharged, FinishedAt: &finished}
	kase, ok := classifyLongrun(job, finished.Add(time.Minute), time.Hour)
	assert.True(t, ok)
	assert.Equal(t, caseFinishedCharged, kase)
}

func TestClassifyLongrunFinishedOvercharged(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	finished := started.Add(time.Hour)
	lastCharged := finished.Add(10 * time.Minute)
	job := &model.Job{StartedAt: &started, FinishedAt: &finished, LastChargedAt: &lastCharged}
	kase, ok := classifyLongrun(job, finished.Add(time.Hour), time.Hour)
	assert.True(t, ok)
	assert.Equal(t, caseFinishedOvercharged, kase)
}

func TestClassifyLongrunAlreadySettled(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	finished := started.Add(time.Hour)
	job := &model.Job{StartedAt: &started, FinishedAt: &finished, LastChargedAt: &finished}
	_, ok := classifyLongrun(job, finished.Add(time.Hour), time.Hour)
	assert.False(t, ok, "last_charged_at == finished_at means nothing left to settle")
}
