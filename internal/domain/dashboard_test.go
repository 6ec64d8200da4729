package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
)

func activityAt(id string, typ domain.ActivityType, duration, calories int, startedAt time.Time) domain.Activity {
	return domain.Activity{ID: id, UserID: "user-1", Type: typ, DurationMin: duration, CaloriesBurned: calories, StartedAt: startedAt}
}

func TestSummarizeEmpty(t *testing.T) {
	d := domain.Summarize(nil, fixedNow, domain.DefaultWeeklyCalorieGoal)
	require.Zero(t, d.TotalActivities)
	require.Zero(t, d.AverageDurationMin)
	require.Empty(t, d.ActivityTypes)
	require.Empty(t, d.Recent)
	require.Equal(t, domain.DefaultWeeklyCalorieGoal, d.Weekly.Goal)
	require.Zero(t, d.Weekly.ProgressPct)
}

func TestSummarizeTotals(t *testing.T) {
	activities := []domain.Activity{
		activityAt("a-4", domain.ActivityWalking, 45, 200, fixedNow.Add(-time.Hour)),
		activityAt("a-3", domain.ActivityRunning, 30, 300, fixedNow.Add(-48*time.Hour)),
		activityAt("a-2", domain.ActivityWalking, 20, 100, fixedNow.Add(-6*24*time.Hour)),
		activityAt("a-1", domain.ActivityCycling, 60, 500, fixedNow.Add(-10*24*time.Hour)),
	}

	d := domain.Summarize(activities, fixedNow, domain.DefaultWeeklyCalorieGoal)
	require.Equal(t, 4, d.TotalActivities)
	require.Equal(t, 1100, d.TotalCalories)
	require.Equal(t, 155, d.TotalDurationMin)
	require.Equal(t, 39, d.AverageDurationMin, "155/4 = 38.75 rounds to 39")
	require.Equal(t, []domain.ActivityType{domain.ActivityWalking, domain.ActivityRunning, domain.ActivityCycling}, d.ActivityTypes)

	require.Equal(t, 3, d.Weekly.Activities)
	require.Equal(t, 600, d.Weekly.Calories)
	require.InDelta(t, 30.0, d.Weekly.ProgressPct, 0.001)
	require.Equal(t, fixedNow.Add(-7*24*time.Hour), d.Weekly.From)

	require.Equal(t, []domain.TypeBreakdown{
		{Type: domain.ActivityCycling, Count: 1, Calories: 500, DurationMin: 60},
		{Type: domain.ActivityRunning, Count: 1, Calories: 300, DurationMin: 30},
		{Type: domain.ActivityWalking, Count: 2, Calories: 300, DurationMin: 65},
	}, d.ByType)

	require.Len(t, d.Recent, 4)
	require.Equal(t, "a-4", d.Recent[0].ID)
}

func TestSummarizeWeeklyWindowEdges(t *testing.T) {
	cases := []struct {
		name    string
		started time.Time
		counted bool
	}{
		{name: "exactly seven days ago", started: fixedNow.Add(-7 * 24 * time.Hour), counted: true},
		{name: "just before the window", started: fixedNow.Add(-7*24*time.Hour - time.Nanosecond), counted: false},
		{name: "exactly now", started: fixedNow, counted: true},
		{name: "after now", started: fixedNow.Add(time.Minute), counted: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			activities := []domain.Activity{activityAt("a-1", domain.ActivityRunning, 30, 400, tc.started)}
			d := domain.Summarize(activities, fixedNow, domain.DefaultWeeklyCalorieGoal)

			require.Equal(t, 1, d.TotalActivities)
			if tc.counted {
				require.Equal(t, 1, d.Weekly.Activities)
				require.Equal(t, 400, d.Weekly.Calories)
				require.InDelta(t, 20.0, d.Weekly.ProgressPct, 0.001)
				return
			}
			require.Zero(t, d.Weekly.Activities)
			require.Zero(t, d.Weekly.Calories)
			require.Zero(t, d.Weekly.ProgressPct)
		})
	}
}

func TestSummarizeRoundsHalfUp(t *testing.T) {
	activities := []domain.Activity{
		activityAt("a-1", domain.ActivityRunning, 10, 1, fixedNow),
		activityAt("a-2", domain.ActivityRunning, 11, 1, fixedNow),
	}
	d := domain.Summarize(activities, fixedNow, 0)
	require.Equal(t, 11, d.AverageDurationMin)
	require.Zero(t, d.Weekly.ProgressPct, "non-positive goals report no progress")
}

func TestSummarizeCapsProgressAndRecent(t *testing.T) {
	var activities []domain.Activity
	for i := 0; i < 7; i++ {
		activities = append(activities, activityAt(string(rune('a'+i)), domain.ActivityRunning, 30, 600, fixedNow.Add(-time.Duration(i)*time.Hour)))
	}
	d := domain.Summarize(activities, fixedNow, 2000)
	require.Equal(t, 100.0, d.Weekly.ProgressPct)
	require.Len(t, d.Recent, domain.RecentActivityCount)
	require.Equal(t, "a", d.Recent[0].ID)
}

func TestServiceDashboardUsesPreferredGoal(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, _, err := svc.CreateActivity(ctx, "user-1", domain.ActivityInput{DurationMin: 30, CaloriesBurned: 500, StartedAt: fixedNow.Add(-time.Hour)}, "")
	require.NoError(t, err)

	goal := 1000
	_, err = svc.UpdatePreferences(ctx, "user-1", domain.PreferencesUpdate{WeeklyCalorieGoal: &goal})
	require.NoError(t, err)

	d, err := svc.Dashboard(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1000, d.Weekly.Goal)
	require.InDelta(t, 50.0, d.Weekly.ProgressPct, 0.001)
}
