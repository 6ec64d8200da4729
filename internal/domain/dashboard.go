package domain

import (
	"math"
	"sort"
	"time"
)

const (
	// DefaultWeeklyCalorieGoal applies until the user sets their own goal.
	DefaultWeeklyCalorieGoal = 2000
	// RecentActivityCount is the number of activities shown on the dashboard timeline.
	RecentActivityCount = 5

	weekWindow = 7 * 24 * time.Hour
)

// Dashboard is the aggregate view over a user's activity list.
type Dashboard struct {
	TotalActivities    int
	TotalCalories      int
	TotalDurationMin   int
	AverageDurationMin int
	ActivityTypes      []ActivityType
	Weekly             WeeklyProgress
	ByType             []TypeBreakdown
	Recent             []Activity
}

// WeeklyProgress compares calories burned in the trailing week with the goal.
type WeeklyProgress struct {
	From        time.Time
	To          time.Time
	Activities  int
	Calories    int
	Goal        int
	ProgressPct float64
}

// TypeBreakdown aggregates activities of a single type.
type TypeBreakdown struct {
	Type        ActivityType
	Count       int
	Calories    int
	DurationMin int
}

// Summarize computes dashboard statistics. Activities are expected newest
// first, as returned by the repositories; the weekly window is [now-7d, now].
func Summarize(activities []Activity, now time.Time, weeklyGoal int) Dashboard {
	d := Dashboard{
		TotalActivities: len(activities),
		ActivityTypes:   make([]ActivityType, 0),
		ByType:          make([]TypeBreakdown, 0),
		Recent:          make([]Activity, 0, RecentActivityCount),
	}

	seen := make(map[ActivityType]int)
	for _, a := range activities {
		d.TotalCalories += a.CaloriesBurned
		d.TotalDurationMin += a.DurationMin

		idx, ok := seen[a.Type]
		if !ok {
			d.ActivityTypes = append(d.ActivityTypes, a.Type)
			d.ByType = append(d.ByType, TypeBreakdown{Type: a.Type})
			idx = len(d.ByType) - 1
			seen[a.Type] = idx
		}
		d.ByType[idx].Count++
		d.ByType[idx].Calories += a.CaloriesBurned
		d.ByType[idx].DurationMin += a.DurationMin
	}
	sort.Slice(d.ByType, func(i, j int) bool { return d.ByType[i].Type < d.ByType[j].Type })

	if d.TotalActivities > 0 {
		d.AverageDurationMin = int(math.Round(float64(d.TotalDurationMin) / float64(d.TotalActivities)))
	}

	d.Weekly = weeklyProgress(activities, now, weeklyGoal)

	recent := make([]Activity, len(activities))
	copy(recent, activities)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].StartedAt.After(recent[j].StartedAt) })
	if len(recent) > RecentActivityCount {
		recent = recent[:RecentActivityCount]
	}
	d.Recent = append(d.Recent, recent...)

	return d
}

func weeklyProgress(activities []Activity, now time.Time, goal int) WeeklyProgress {
	w := WeeklyProgress{From: now.Add(-weekWindow), To: now, Goal: goal}
	for _, a := range activities {
		if a.StartedAt.Before(w.From) || a.StartedAt.After(w.To) {
			continue
		}
		w.Activities++
		w.Calories += a.CaloriesBurned
	}
	if goal > 0 {
		w.ProgressPct = math.Min(float64(w.Calories)/float64(goal)*100, 100)
	}
	return w
}
