package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nlud/internal/config"
	"github.com/edgard/nlud/internal/scheduler"
	"github.com/edgard/nlud/internal/scheduler/tasks"
)

func TestSchedulerRunsEnabledTasks(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	taskMap := map[string]tasks.ScheduledTaskFunc{
		"tick": func(context.Context) error {
			runs.Add(1)
			return nil
		},
		"disabled": func(context.Context) error {
			t.Error("disabled task ran")
			return nil
		},
	}
	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"tick":       {Enabled: true, Schedule: "* * * * * *"},
		"disabled":   {Enabled: false, Schedule: "* * * * * *"},
		"unknown":    {Enabled: true, Schedule: "* * * * * *"},
		"unschedule": {Enabled: true},
	}}

	s, err := scheduler.NewScheduler(nil, cfg, taskMap)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "starting twice fails")

	assert.Equal(t, []string{"tick"}, s.Jobs())
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestSchedulerWithoutTasks(t *testing.T) {
	t.Parallel()

	s, err := scheduler.NewScheduler(nil, &config.SchedulerConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	assert.Empty(t, s.Jobs())
	require.NoError(t, s.Stop())
}
