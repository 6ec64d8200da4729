package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"example.com/fittrack/internal/api"
	"example.com/fittrack/internal/domain"
)

// ActivityForm holds the raw flag values of the activity form.
type ActivityForm struct {
	Type      string
	Duration  int
	Calories  int
	StartedAt string
	Metrics   []string
}

// Request validates the form with the same rules as the API and builds the
// request body.
func (f ActivityForm) Request() (api.ActivityRequest, error) {
	activityType := strings.TrimSpace(f.Type)
	if activityType == "" {
		activityType = string(domain.DefaultActivityType)
	}

	in := domain.ActivityInput{Type: activityType, DurationMin: f.Duration, CaloriesBurned: f.Calories}
	if err := in.Validate(); err != nil {
		return api.ActivityRequest{}, err
	}
	parsedType, _ := domain.ParseActivityType(activityType)

	req := api.ActivityRequest{
		ActivityType:   string(parsedType),
		DurationMin:    f.Duration,
		CaloriesBurned: f.Calories,
	}

	if raw := strings.TrimSpace(f.StartedAt); raw != "" {
		startedAt, err := parseStartedAt(raw)
		if err != nil {
			return api.ActivityRequest{}, err
		}
		req.StartedAt = &startedAt
	}

	if len(f.Metrics) > 0 {
		metrics, err := parseMetrics(f.Metrics)
		if err != nil {
			return api.ActivityRequest{}, err
		}
		req.AdditionalMetrics = metrics
	}
	return req, nil
}

var startedAtLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

func parseStartedAt(raw string) (time.Time, error) {
	for _, layout := range startedAtLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --started-at %q (use RFC3339 or YYYY-MM-DD HH:MM)", raw)
}

// parseMetrics turns key=value pairs into a metrics map. Finite numbers and
// booleans keep their type; everything else, including nan and inf, stays a string.
func parseMetrics(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metric %q (expected key=value)", pair)
		}
		value = strings.TrimSpace(value)
		if n, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
			out[key] = n
		} else if b, err := strconv.ParseBool(value); err == nil {
			out[key] = b
		} else {
			out[key] = value
		}
	}
	return out, nil
}
