package recommendation

import (
	"context"
	"fmt"
	"strings"
)

// GeneratorRules identifies advice produced by RuleGenerator.
const GeneratorRules = "rules"

// Intensity bands derived from calories burned per minute.
const (
	IntensityLow      = "low"
	IntensityModerate = "moderate"
	IntensityHigh     = "high"
)

// activityProfile captures advice hints for an activity type.
type activityProfile struct {
	Label         string
	Targets       []string
	ModerateFrom  float64 // kcal/min at which the session counts as moderate
	HighFrom      float64 // kcal/min at which the session counts as high
	LowAdvice     string
	HighAdvice    string
	Complementary []suggestion
	Safety        []string
}

type suggestion struct {
	Workout     string
	Description string
}

var defaultProfile = activityProfile{
	Label:        "Workout",
	Targets:      []string{"general fitness"},
	ModerateFrom: 4,
	HighFrom:     8,
	LowAdvice:    "Raise the effort gradually so the session challenges your heart rate.",
	HighAdvice:   "Balance hard sessions with easy days to let your body adapt.",
	Complementary: []suggestion{
		{Workout: "Yoga Flow", Description: "20 minutes of mobility work to aid recovery."},
	},
}

var profiles = map[string]activityProfile{
	"RUNNING": {
		Label:        "Running",
		Targets:      []string{"cardio", "legs"},
		ModerateFrom: 8,
		HighFrom:     12,
		LowAdvice:    "Add 4-6 short strides or a tempo block to lift your pace.",
		HighAdvice:   "Keep most weekly runs conversational and save hard efforts for one or two sessions.",
		Complementary: []suggestion{
			{Workout: "Recovery Ride", Description: "30 minutes of easy cycling to flush the legs without impact."},
			{Workout: "Strength Session", Description: "Squats, lunges and calf raises to protect knees and ankles."},
		},
		Safety: []string{"Wear supportive running shoes and replace them every 500-800 km."},
	},
	"WALKING": {
		Label:        "Walking",
		Targets:      []string{"cardio", "mobility"},
		ModerateFrom: 4,
		HighFrom:     6,
		LowAdvice:    "Pick up the pace or add a few hills to turn the walk into a cardio session.",
		HighAdvice:   "Great brisk pace; try extending the distance while keeping the same effort.",
		Complementary: []suggestion{
			{Workout: "Hill Walk", Description: "Include inclines for 15 minutes to build leg strength."},
			{Workout: "Strength Session", Description: "Bodyweight circuits twice a week to complement walking."},
		},
		Safety: []string{"Use reflective gear or a light when walking in low light."},
	},
	"CYCLING": {
		Label:        "Cycling",
		Targets:      []string{"cardio", "legs"},
		ModerateFrom: 6,
		HighFrom:     10,
		LowAdvice:    "Include a few 3-minute intervals at higher cadence to build power.",
		HighAdvice:   "Pair hard rides with recovery spins and check your bike fit for longer efforts.",
		Complementary: []suggestion{
			{Workout: "Easy Run", Description: "A short easy run to add impact loading for bone health."},
			{Workout: "Yoga Flow", Description: "Hip and hamstring mobility to offset time in the saddle."},
		},
		Safety: []string{"Always wear a helmet and use lights on the road."},
	},
}

var generalSafety = []string{
	"Warm up for 5-10 minutes before starting.",
	"Stay hydrated before, during and after the session.",
}

func lookupProfile(activityType string) activityProfile {
	key := strings.ToUpper(strings.TrimSpace(activityType))
	if p, ok := profiles[key]; ok {
		return p
	}
	return defaultProfile
}

// RuleGenerator derives advice from a static per-type catalog.
type RuleGenerator struct{}

// NewRuleGenerator constructs a RuleGenerator.
func NewRuleGenerator() RuleGenerator { return RuleGenerator{} }

// Intensity classifies a session by burn rate.
func Intensity(activity ActivitySnapshot) string {
	p := lookupProfile(activity.ActivityType)
	rate := activity.CaloriesPerMinute()
	switch {
	case rate >= p.HighFrom:
		return IntensityHigh
	case rate >= p.ModerateFrom:
		return IntensityModerate
	default:
		return IntensityLow
	}
}

// Generate implements Generator.
func (RuleGenerator) Generate(_ context.Context, activity ActivitySnapshot) (Recommendation, error) {
	p := lookupProfile(activity.ActivityType)
	intensity := Intensity(activity)

	analysis := fmt.Sprintf("%s session of %d minutes burning %d kcal (%.1f kcal/min, %s intensity). Targets: %s.",
		p.Label, activity.DurationMin, activity.CaloriesBurned, activity.CaloriesPerMinute(), intensity, strings.Join(p.Targets, ", "))

	improvements := make([]string, 0, 3)
	switch intensity {
	case IntensityLow:
		improvements = append(improvements, "Intensity: "+p.LowAdvice)
	case IntensityHigh:
		improvements = append(improvements, "Recovery: "+p.HighAdvice)
	}
	switch {
	case activity.DurationMin < 20:
		improvements = append(improvements, "Duration: Build toward 30 minutes per session to develop your aerobic base.")
	case activity.DurationMin > 90:
		improvements = append(improvements, "Fueling: Sessions over 90 minutes benefit from carbohydrates and electrolytes during the effort.")
	}
	if len(improvements) == 0 {
		improvements = append(improvements, "Consistency: Keep this effort steady and aim for three to five sessions a week.")
	}

	suggestions := make([]string, 0, len(p.Complementary))
	for _, s := range p.Complementary {
		suggestions = append(suggestions, s.Workout+": "+s.Description)
	}

	safety := append([]string(nil), generalSafety...)
	safety = append(safety, p.Safety...)
	if intensity == IntensityHigh && activity.DurationMin >= 60 {
		safety = append(safety, "Monitor your heart rate and stop if you feel dizzy or short of breath.")
	}

	return Recommendation{
		ActivityID:   activity.ActivityID,
		UserID:       activity.UserID,
		ActivityType: activity.ActivityType,
		Analysis:     analysis,
		Improvements: improvements,
		Suggestions:  suggestions,
		Safety:       safety,
		Generator:    GeneratorRules,
	}, nil
}
