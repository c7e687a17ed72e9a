package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_SetProgressDrivesStatus(t *testing.T) {
	task := Task{Status: TaskTodo}

	require.NoError(t, task.SetProgress(40))
	assert.Equal(t, TaskProgress, task.Status)

	require.NoError(t, task.SetProgress(100))
	assert.Equal(t, TaskDone, task.Status)

	require.NoError(t, task.SetProgress(0))
	assert.Equal(t, TaskTodo, task.Status)

	assert.ErrorIs(t, task.SetProgress(101), ErrProgressOutOfRange)
	assert.ErrorIs(t, task.SetProgress(-1), ErrProgressOutOfRange)
	assert.Equal(t, 0, task.Progress)
}

func TestTask_MoveToKeepsInvariant(t *testing.T) {
	task := Task{Status: TaskTodo}

	require.NoError(t, task.MoveTo(TaskReview))
	assert.Equal(t, TaskReview, task.Status)
	assert.Equal(t, 1, task.Progress)

	require.NoError(t, task.MoveTo(TaskDone))
	assert.Equal(t, 100, task.Progress)

	require.NoError(t, task.MoveTo(TaskProgress))
	assert.Equal(t, 99, task.Progress)

	require.NoError(t, task.SetProgress(55))
	require.NoError(t, task.MoveTo(TaskReview))
	assert.Equal(t, 55, task.Progress)

	require.NoError(t, task.MoveTo(TaskTodo))
	assert.Equal(t, 0, task.Progress)

	assert.ErrorIs(t, task.MoveTo("blocked"), ErrUnknownTaskStatus)
}

func TestTask_JSONUsesISODatesAndLabels(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	task := Task{ID: "briefing-1-0", StartDate: &start, DueDate: &due, Status: TaskTodo, Priority: PriorityHigh}

	data, err := json.Marshal(task)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "2026-01-10", wire["start_date"])
	assert.Equal(t, "2026-01-12", wire["due_date"])
	assert.Equal(t, "10 Jan", wire["start_label"])
	assert.Equal(t, "12 Jan", wire["due_label"])

	var back Task
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.DueDate)
	assert.True(t, due.Equal(*back.DueDate))
	assert.Equal(t, PriorityHigh, back.Priority)
}

func TestTask_UnscheduledLabel(t *testing.T) {
	data, err := json.Marshal(Task{ID: "custom-1"})
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, UnscheduledLabel, wire["due_label"])
	assert.NotContains(t, wire, "due_date")
}

func TestTask_Overdue(t *testing.T) {
	now := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)
	yesterday := AddDays(now, -1)
	today := DateOnly(now)

	assert.True(t, (&Task{Status: TaskTodo, DueDate: &yesterday}).Overdue(now))
	assert.False(t, (&Task{Status: TaskDone, DueDate: &yesterday}).Overdue(now))
	assert.False(t, (&Task{Status: TaskTodo, DueDate: &today}).Overdue(now))
	assert.False(t, (&Task{Status: TaskTodo}).Overdue(now))
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityLow.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityHigh.Rank())
	assert.Zero(t, Priority("urgent").Rank())
}
