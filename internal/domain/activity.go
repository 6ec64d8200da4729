package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActivityType enumerates the supported workouts.
type ActivityType string

const (
	ActivityRunning ActivityType = "RUNNING"
	ActivityWalking ActivityType = "WALKING"
	ActivityCycling ActivityType = "CYCLING"
)

// DefaultActivityType is preselected on the activity form.
const DefaultActivityType = ActivityRunning

// Upper bounds for a single activity. Both fit the INTEGER columns in Postgres.
const (
	MaxDurationMin    = 24 * 60
	MaxCaloriesBurned = 50000
)

// ActivityTypes lists the supported types in display order.
var ActivityTypes = []ActivityType{ActivityRunning, ActivityWalking, ActivityCycling}

var (
	// ErrMissingFields is returned when duration or calories are absent.
	ErrMissingFields = errors.New("duration_min and calories_burned are required")
	// ErrNonPositive is returned when duration or calories are below zero.
	ErrNonPositive = errors.New("duration_min and calories_burned must be greater than 0")
	// ErrOutOfRange is returned when duration or calories exceed the per-activity maximum.
	ErrOutOfRange = fmt.Errorf("duration_min must be at most %d and calories_burned at most %d", MaxDurationMin, MaxCaloriesBurned)
	// ErrInvalidActivityType is returned for types outside ActivityTypes.
	ErrInvalidActivityType = errors.New("invalid activity type")
)

// ParseActivityType normalises user input into an ActivityType.
func ParseActivityType(raw string) (ActivityType, error) {
	normalized := ActivityType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, t := range ActivityTypes {
		if t == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q (expected one of RUNNING, WALKING, CYCLING)", ErrInvalidActivityType, raw)
}

// Label returns the human readable name, e.g. "Running".
func (t ActivityType) Label() string {
	s := strings.ToLower(string(t))
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Activity is a logged workout owned by a single user.
type Activity struct {
	ID                string
	UserID            string
	Type              ActivityType
	DurationMin       int
	CaloriesBurned    int
	StartedAt         time.Time
	AdditionalMetrics map[string]any
	Version           string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ActivityInput is the form payload for creating or replacing an activity.
type ActivityInput struct {
	Type              string
	DurationMin       int
	CaloriesBurned    int
	StartedAt         time.Time
	AdditionalMetrics map[string]any
}

// Validate applies the activity form rules. An empty type is accepted and
// later defaults to DefaultActivityType.
func (in ActivityInput) Validate() error {
	if in.DurationMin == 0 || in.CaloriesBurned == 0 {
		return ErrMissingFields
	}
	if in.DurationMin < 0 || in.CaloriesBurned < 0 {
		return ErrNonPositive
	}
	if in.DurationMin > MaxDurationMin || in.CaloriesBurned > MaxCaloriesBurned {
		return ErrOutOfRange
	}
	if strings.TrimSpace(in.Type) != "" {
		if _, err := ParseActivityType(in.Type); err != nil {
			return err
		}
	}
	return nil
}

// IsValidationError reports whether err came from ActivityInput.Validate or
// preference validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingFields) ||
		errors.Is(err, ErrNonPositive) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrInvalidActivityType) ||
		errors.Is(err, ErrInvalidTheme) ||
		errors.Is(err, ErrInvalidGoal)
}

func (in ActivityInput) activityType() ActivityType {
	if strings.TrimSpace(in.Type) == "" {
		return DefaultActivityType
	}
	t, _ := ParseActivityType(in.Type)
	return t
}

func copyMetrics(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
