package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) {}

func TestScheduleAndReschedule(t *testing.T) {
	s := New()
	defer s.Stop()

	require.NoError(t, s.ScheduleIRT("0 3 * * *", noop))
	require.NoError(t, s.ScheduleTagging("*/30 * * * *", noop))
	assert.Equal(t, 2, s.Jobs())

	// 相同表达式不重复注册
	require.NoError(t, s.ScheduleIRT("0 3 * * *", noop))
	assert.Equal(t, 2, s.Jobs())

	require.NoError(t, s.ScheduleIRT("0 4 * * *", noop))
	assert.Equal(t, 2, s.Jobs())

	require.NoError(t, s.ScheduleTagging("", noop))
	assert.Equal(t, 1, s.Jobs())
}

func TestScheduleInvalidCron(t *testing.T) {
	s := New()
	defer s.Stop()

	assert.Error(t, s.ScheduleIRT("not a cron", noop))
	assert.Equal(t, 0, s.Jobs())
}
