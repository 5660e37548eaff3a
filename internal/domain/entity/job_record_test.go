package entity_test

import (
	"testing"
	"time"

	"flexsearch-service/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransitionAllowed(t *testing.T) {
	allowed := []struct{ from, to entity.JobStatus }{
		{entity.StatusPending, entity.StatusProcessing},
		{entity.StatusPending, entity.StatusFailed},
		{entity.StatusProcessing, entity.StatusProcessing},
		{entity.StatusProcessing, entity.StatusCompleted},
		{entity.StatusProcessing, entity.StatusFailed},
	}
	for _, tc := range allowed {
		assert.True(t, entity.IsTransitionAllowed(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to entity.JobStatus }{
		{entity.StatusPending, entity.StatusCompleted},
		{entity.StatusCompleted, entity.StatusProcessing},
		{entity.StatusCompleted, entity.StatusFailed},
		{entity.StatusFailed, entity.StatusProcessing},
		{entity.StatusProcessing, entity.StatusPending},
	}
	for _, tc := range denied {
		assert.False(t, entity.IsTransitionAllowed(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestParseJobStatus(t *testing.T) {
	st, err := entity.ParseJobStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, st)

	_, err = entity.ParseJobStatus("done")
	assert.Error(t, err)
}

func TestNewJobRecord(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := entity.NewJobRecord("job-1", validRequest(), now)

	assert.Equal(t, entity.StatusPending, rec.Status)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, entity.Progress{Total: 7, EstimatedTimeRemaining: 14}, rec.Progress)
	assert.NotNil(t, rec.Results.TopResults)
	assert.NotNil(t, rec.Results.PriceCalendar)
	assert.Nil(t, rec.Results.Statistics)
	assert.Equal(t, now, rec.CreatedAt)
}

func TestJobPatch_Apply(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	later := created.Add(time.Minute)
	rec := entity.NewJobRecord("job-1", validRequest(), created)

	err := entity.JobPatch{
		Status:   entity.StatusPtr(entity.StatusProcessing),
		Progress: &entity.Progress{Total: 7, Checked: 3, Percentage: 43, EstimatedTimeRemaining: 4},
		Attempts: entity.IntPtr(1),
	}.Apply(&rec, later)
	require.NoError(t, err)

	assert.Equal(t, entity.StatusProcessing, rec.Status)
	assert.Equal(t, 3, rec.Progress.Checked)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, later, rec.UpdatedAt)
	assert.Equal(t, created, rec.CreatedAt)
}

func TestJobPatch_ApplyRejectsTerminal(t *testing.T) {
	now := time.Now()
	rec := entity.NewJobRecord("job-1", validRequest(), now)
	require.NoError(t, entity.JobPatch{Status: entity.StatusPtr(entity.StatusFailed), Error: entity.StringPtr("cancelled")}.Apply(&rec, now))

	err := entity.JobPatch{Progress: &entity.Progress{Total: 7, Checked: 7, Percentage: 100}}.Apply(&rec, now)
	assert.ErrorIs(t, err, entity.ErrJobTerminal)
	assert.Equal(t, 0, rec.Progress.Checked)
	assert.Equal(t, "cancelled", rec.Error)
}

func TestJobPatch_ApplyRejectsSkippedTransition(t *testing.T) {
	rec := entity.NewJobRecord("job-1", validRequest(), time.Now())
	err := entity.JobPatch{Status: entity.StatusPtr(entity.StatusCompleted)}.Apply(&rec, time.Now())
	assert.Error(t, err)
	assert.Equal(t, entity.StatusPending, rec.Status)
}
