package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronExprs_Daily(t *testing.T) {
	crons, err := cronExprs(Config{Mode: ModeDaily, DailyTimes: []string{"08:30", "12:00"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"generate@08:30": "30 8 * * *",
		"generate@12:00": "0 12 * * *",
	}, crons)
}

func TestCronExprs_Hourly(t *testing.T) {
	crons, err := cronExprs(Config{Mode: ModeHourly, MinuteOfHour: 15})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"generate@hourly:15": "15 * * * *"}, crons)
}

func TestCronExprs_Invalid(t *testing.T) {
	cases := []Config{
		{Mode: ModeDaily},
		{Mode: ModeDaily, DailyTimes: []string{"25:00"}},
		{Mode: ModeDaily, DailyTimes: []string{"08:61"}},
		{Mode: ModeDaily, DailyTimes: []string{"noon"}},
		{Mode: ModeHourly, MinuteOfHour: 60},
		{Mode: ModeHourly, MinuteOfHour: -1},
		{Mode: "weekly"},
	}
	for _, cfg := range cases {
		_, err := cronExprs(cfg)
		assert.Error(t, err, "config %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Config{Mode: ModeDaily, DailyTimes: []string{"08:00"}}.Validate())
	assert.NoError(t, Config{Mode: ModeHourly, MinuteOfHour: 30}.Validate())
	assert.Error(t, Config{Mode: ModeDaily}.Validate(),
		"daily mode without fire times must be rejected before serve time")
	assert.Error(t, Config{Mode: ModeHourly, MinuteOfHour: 99}.Validate())
}

func TestApply_ReplacesJobs(t *testing.T) {
	s, err := New(time.UTC, func(ctx context.Context) {})
	require.NoError(t, err)
	defer s.Shutdown()

	require.NoError(t, s.Apply(Config{Mode: ModeDaily, DailyTimes: []string{"08:00", "12:00", "18:00"}}))
	assert.Equal(t, 3, s.Jobs())

	// A reload replaces the previous set instead of accumulating.
	require.NoError(t, s.Apply(Config{Mode: ModeHourly, MinuteOfHour: 0}))
	assert.Equal(t, 1, s.Jobs())
}

func TestApply_InvalidConfigLeavesNoJobs(t *testing.T) {
	s, err := New(time.UTC, func(ctx context.Context) {})
	require.NoError(t, err)
	defer s.Shutdown()

	assert.Error(t, s.Apply(Config{Mode: "weekly"}))
	assert.Equal(t, 0, s.Jobs())
}
