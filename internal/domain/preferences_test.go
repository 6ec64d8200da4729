package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
)

func TestThemeToggle(t *testing.T) {
	require.Equal(t, domain.ThemeDark, domain.ThemeLight.Toggle())
	require.Equal(t, domain.ThemeLight, domain.ThemeDark.Toggle())

	theme, err := domain.ParseTheme(" DARK ")
	require.NoError(t, err)
	require.Equal(t, domain.ThemeDark, theme)

	_, err = domain.ParseTheme("sepia")
	require.ErrorIs(t, err, domain.ErrInvalidTheme)
}

func TestPreferencesDefaultsAndUpdate(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	prefs, err := svc.GetPreferences(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.DefaultPreferences("user-1"), prefs)

	theme := "dark"
	updated, err := svc.UpdatePreferences(ctx, "user-1", domain.PreferencesUpdate{Theme: &theme})
	require.NoError(t, err)
	require.Equal(t, domain.ThemeDark, updated.Theme)
	require.Equal(t, domain.DefaultWeeklyCalorieGoal, updated.WeeklyCalorieGoal)
	require.Equal(t, fixedNow, updated.UpdatedAt)

	stored, err := svc.GetPreferences(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.ThemeDark, stored.Theme)
}

func TestPreferencesValidation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	bad := "neon"
	_, err := svc.UpdatePreferences(ctx, "user-1", domain.PreferencesUpdate{Theme: &bad})
	require.ErrorIs(t, err, domain.ErrInvalidTheme)

	zero := 0
	_, err = svc.UpdatePreferences(ctx, "user-1", domain.PreferencesUpdate{WeeklyCalorieGoal: &zero})
	require.ErrorIs(t, err, domain.ErrInvalidGoal)
	require.True(t, domain.IsValidationError(err))
}
