package api

import (
	"time"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/recommendation"
)

// ActivityRequest is the payload for POST and PUT on activities.
type ActivityRequest struct {
	ActivityType      string         `json:"activity_type"`
	DurationMin       int            `json:"duration_min"`
	CaloriesBurned    int            `json:"calories_burned"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	AdditionalMetrics map[string]any `json:"additional_metrics,omitempty"`
}

func (r ActivityRequest) input() domain.ActivityInput {
	in := domain.ActivityInput{
		Type:              r.ActivityType,
		DurationMin:       r.DurationMin,
		CaloriesBurned:    r.CaloriesBurned,
		AdditionalMetrics: r.AdditionalMetrics,
	}
	if r.StartedAt != nil {
		in.StartedAt = *r.StartedAt
	}
	return in
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID        string         `json:"activity_id"`
	UserID            string         `json:"user_id"`
	ActivityType      string         `json:"activity_type"`
	DurationMin       int            `json:"duration_min"`
	CaloriesBurned    int            `json:"calories_burned"`
	StartedAt         time.Time      `json:"started_at"`
	AdditionalMetrics map[string]any `json:"additional_metrics"`
	Version           string         `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// CreateActivityResponse describes the response body for create.
type CreateActivityResponse struct {
	ActivityView
	Replay bool `json:"idempotent_replay"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// DashboardView is the response body for GET /v1/dashboard.
type DashboardView struct {
	TotalActivities    int                 `json:"total_activities"`
	TotalCalories      int                 `json:"total_calories"`
	TotalDurationMin   int                 `json:"total_duration_min"`
	AverageDurationMin int                 `json:"average_duration_min"`
	ActivityTypes      []string            `json:"activity_types"`
	Weekly             WeeklyProgressView  `json:"weekly"`
	ByType             []TypeBreakdownView `json:"by_type"`
	Recent             []ActivityView      `json:"recent"`
}

// WeeklyProgressView reports the trailing-week calorie goal.
type WeeklyProgressView struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Activities  int       `json:"activities"`
	Calories    int       `json:"calories"`
	Goal        int       `json:"goal"`
	ProgressPct float64   `json:"progress_pct"`
}

// TypeBreakdownView aggregates one activity type.
type TypeBreakdownView struct {
	ActivityType string `json:"activity_type"`
	Count        int    `json:"count"`
	Calories     int    `json:"calories"`
	DurationMin  int    `json:"duration_min"`
}

// PreferencesRequest is a partial update; omitted fields keep their value.
type PreferencesRequest struct {
	Theme             *string `json:"theme,omitempty"`
	WeeklyCalorieGoal *int    `json:"weekly_calorie_goal,omitempty"`
}

// PreferencesView exposes the user's display settings.
type PreferencesView struct {
	Theme             string     `json:"theme"`
	WeeklyCalorieGoal int        `json:"weekly_calorie_goal"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// RecommendationView exposes advice for one activity.
type RecommendationView struct {
	ID           string    `json:"id"`
	ActivityID   string    `json:"activity_id"`
	ActivityType string    `json:"activity_type"`
	Analysis     string    `json:"analysis"`
	Improvements []string  `json:"improvements"`
	Suggestions  []string  `json:"suggestions"`
	Safety       []string  `json:"safety"`
	Generator    string    `json:"generator"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListRecommendationsResponse packages recommendation results.
type ListRecommendationsResponse struct {
	Items []RecommendationView `json:"items"`
}

// UserView describes the authenticated caller.
type UserView struct {
	Subject   string     `json:"sub"`
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SessionResponse is returned by the login callback when no return_to was given.
type SessionResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        UserView  `json:"user"`
}

// LogoutResponse tells the client where to end the provider session.
type LogoutResponse struct {
	LogoutURL   string    `json:"logout_url,omitempty"`
	LoggedOutAt time.Time `json:"logged_out_at"`
}

func toActivityView(a domain.Activity) ActivityView {
	metrics := a.AdditionalMetrics
	if metrics == nil {
		metrics = map[string]any{}
	}
	return ActivityView{
		ActivityID:        a.ID,
		UserID:            a.UserID,
		ActivityType:      string(a.Type),
		DurationMin:       a.DurationMin,
		CaloriesBurned:    a.CaloriesBurned,
		StartedAt:         a.StartedAt,
		AdditionalMetrics: metrics,
		Version:           a.Version,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toDashboardView(d domain.Dashboard) DashboardView {
	view := DashboardView{
		TotalActivities:    d.TotalActivities,
		TotalCalories:      d.TotalCalories,
		TotalDurationMin:   d.TotalDurationMin,
		AverageDurationMin: d.AverageDurationMin,
		ActivityTypes:      make([]string, 0, len(d.ActivityTypes)),
		Weekly: WeeklyProgressView{
			From:        d.Weekly.From,
			To:          d.Weekly.To,
			Activities:  d.Weekly.Activities,
			Calories:    d.Weekly.Calories,
			Goal:        d.Weekly.Goal,
			ProgressPct: d.Weekly.ProgressPct,
		},
		ByType: make([]TypeBreakdownView, 0, len(d.ByType)),
		Recent: make([]ActivityView, 0, len(d.Recent)),
	}
	for _, t := range d.ActivityTypes {
		view.ActivityTypes = append(view.ActivityTypes, string(t))
	}
	for _, b := range d.ByType {
		view.ByType = append(view.ByType, TypeBreakdownView{
			ActivityType: string(b.Type),
			Count:        b.Count,
			Calories:     b.Calories,
			DurationMin:  b.DurationMin,
		})
	}
	for _, a := range d.Recent {
		view.Recent = append(view.Recent, toActivityView(a))
	}
	return view
}

func toPreferencesView(p domain.Preferences) PreferencesView {
	view := PreferencesView{Theme: string(p.Theme), WeeklyCalorieGoal: p.WeeklyCalorieGoal}
	if !p.UpdatedAt.IsZero() {
		updated := p.UpdatedAt
		view.UpdatedAt = &updated
	}
	return view
}

func toRecommendationView(r recommendation.Recommendation) RecommendationView {
	return RecommendationView{
		ID:           r.ID,
		ActivityID:   r.ActivityID,
		ActivityType: r.ActivityType,
		Analysis:     r.Analysis,
		Improvements: nonNil(r.Improvements),
		Suggestions:  nonNil(r.Suggestions),
		Safety:       nonNil(r.Safety),
		Generator:    r.Generator,
		CreatedAt:    r.CreatedAt,
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
