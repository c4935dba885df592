package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
)

func TestNewStageTask_Chain(t *testing.T) {
	t.Parallel()

	task, ok := NewStageTask(7, upload.SelectInvalidSalary)
	require.True(t, ok)
	require.Equal(t, StepInsertChildEmployer, task.Current())
	require.Equal(t, "file:7", task.Key())

	var seen []Step
	for {
		seen = append(seen, task.Current())
		next, ok := task.Next()
		if !ok {
			break
		}
		require.NotEqual(t, task.EventID(), next.EventID())
		task = next
	}
	require.Equal(t, Chain(upload.SelectInvalidSalary), seen)
	require.Equal(t, StepFinalize, seen[len(seen)-1])
}

func TestNewStageTask_Deterministic(t *testing.T) {
	t.Parallel()

	a, _ := NewStageTask(1, upload.CopyToDatabase)
	b, _ := NewStageTask(1, upload.CopyToDatabase)
	c, _ := NewStageTask(2, upload.CopyToDatabase)
	require.Equal(t, a.ChainID, b.ChainID)
	require.Equal(t, a.EventID(), b.EventID())
	require.NotEqual(t, a.ChainID, c.ChainID)

	_, ok := NewStageTask(1, "rewind")
	require.False(t, ok)
}

func TestChain_EveryTransitionHasSteps(t *testing.T) {
	t.Parallel()

	for _, tr := range []upload.Transition{upload.CopyToDatabase, upload.SelectUnseenParentEmployer, upload.SelectUnseenChildEmployer, upload.SelectInvalidSalary, upload.Finish} {
		require.NotEmpty(t, Chain(tr), tr)
	}
}
