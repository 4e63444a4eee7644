package todo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRendersChecklist(t *testing.T) {
	tr := NewTracker()
	out, err := tr.Update([]Item{
		{Content: "Read code", Status: StatusCompleted, ActiveForm: "Reading code"},
		{Content: "Write tests", Status: "IN_PROGRESS", ActiveForm: "Writing tests"},
		{Content: "Ship", ActiveForm: "Shipping"},
	})
	require.NoError(t, err)
	assert.Equal(t, "[x] Read code\n[>] Write tests\n[ ] Ship\n(1/3 done)", out)
	assert.Equal(t, StatusPending, tr.Items()[2].Status)
}

func TestTrackerEmpty(t *testing.T) {
	assert.Equal(t, "No todos.", NewTracker().Render())
}

func TestTrackerRejectsTwoInProgressAtomically(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Update([]Item{{Content: "a", Status: StatusPending, ActiveForm: "doing a"}})
	require.NoError(t, err)
	before := tr.Render()

	_, err = tr.Update([]Item{
		{Content: "x", Status: StatusInProgress, ActiveForm: "doing x"},
		{Content: "y", Status: StatusInProgress, ActiveForm: "doing y"},
	})
	require.ErrorIs(t, err, ErrMultipleInProgress)
	assert.Equal(t, before, tr.Render())
}

func TestTrackerValidationErrors(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Update([]Item{{Content: "ok", ActiveForm: "ok"}, {Content: "", ActiveForm: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1: content and activeForm required")

	_, err = tr.Update([]Item{{Content: "a", Status: "blocked", ActiveForm: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")

	assert.Equal(t, "No todos.", tr.Render())
}

func TestTrackerCapsItems(t *testing.T) {
	var items []Item
	for i := 0; i < MaxItems+5; i++ {
		items = append(items, Item{Content: fmt.Sprintf("task %d", i), ActiveForm: "working"})
	}
	tr := NewTracker()
	_, err := tr.Update(items)
	require.NoError(t, err)
	assert.Len(t, tr.Items(), MaxItems)
}

func TestTrackerUpdateReplacesList(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Update([]Item{{Content: "a", ActiveForm: "a"}, {Content: "b", ActiveForm: "b"}})
	require.NoError(t, err)
	out, err := tr.Update([]Item{{Content: "c", Status: StatusCompleted, ActiveForm: "c"}})
	require.NoError(t, err)
	assert.Equal(t, "[x] c\n(1/1 done)", out)
	assert.False(t, errors.Is(err, ErrMultipleInProgress))
}
