package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Theme is the UI color scheme chosen by the user.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

var (
	// ErrInvalidTheme is returned for unknown theme names.
	ErrInvalidTheme = errors.New("theme must be light or dark")
	// ErrInvalidGoal is returned for non-positive calorie goals.
	ErrInvalidGoal = errors.New("weekly_calorie_goal must be greater than 0")
)

// ParseTheme normalises a theme name.
func ParseTheme(raw string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(raw))) {
	case ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	}
	return "", ErrInvalidTheme
}

// Toggle flips between light and dark.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Preferences holds per-user display settings.
type Preferences struct {
	UserID            string
	Theme             Theme
	WeeklyCalorieGoal int
	UpdatedAt         time.Time
}

// DefaultPreferences returns the settings used before the user saves any.
func DefaultPreferences(userID string) Preferences {
	return Preferences{UserID: userID, Theme: ThemeLight, WeeklyCalorieGoal: DefaultWeeklyCalorieGoal}
}

// PreferencesUpdate carries optional changes; nil fields are left untouched.
type PreferencesUpdate struct {
	Theme             *string
	WeeklyCalorieGoal *int
}

// GetPreferences returns stored preferences or the defaults.
func (s *Service) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	stored, err := s.prefs.GetPreferences(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	if stored == nil {
		return DefaultPreferences(userID), nil
	}
	return *stored, nil
}

// UpdatePreferences validates and applies a partial update.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, update PreferencesUpdate) (Preferences, error) {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}

	if update.Theme != nil {
		theme, err := ParseTheme(*update.Theme)
		if err != nil {
			return Preferences{}, err
		}
		prefs.Theme = theme
	}
	if update.WeeklyCalorieGoal != nil {
		if *update.WeeklyCalorieGoal <= 0 {
			return Preferences{}, ErrInvalidGoal
		}
		prefs.WeeklyCalorieGoal = *update.WeeklyCalorieGoal
	}
	prefs.UserID = userID
	prefs.UpdatedAt = s.now().UTC()

	if err := s.prefs.SavePreferences(ctx, prefs); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}
