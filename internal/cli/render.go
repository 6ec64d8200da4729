package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"example.com/fittrack/internal/api"
	"example.com/fittrack/internal/domain"
)

// Palette holds the colors for one theme.
type Palette struct {
	Primary lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
	Border  lipgloss.Color
	Success lipgloss.Color
	Danger  lipgloss.Color
	Track   lipgloss.Color
}

var palettes = map[domain.Theme]Palette{
	domain.ThemeLight: {
		Primary: lipgloss.Color("#1976D2"),
		Text:    lipgloss.Color("#212121"),
		Muted:   lipgloss.Color("#757575"),
		Border:  lipgloss.Color("#D1D5DB"),
		Success: lipgloss.Color("#2E7D32"),
		Danger:  lipgloss.Color("#C62828"),
		Track:   lipgloss.Color("#E0E0E0"),
	},
	domain.ThemeDark: {
		Primary: lipgloss.Color("#90CAF9"),
		Text:    lipgloss.Color("#F5F5F5"),
		Muted:   lipgloss.Color("#9E9E9E"),
		Border:  lipgloss.Color("#4B5563"),
		Success: lipgloss.Color("#81C784"),
		Danger:  lipgloss.Color("#EF9A9A"),
		Track:   lipgloss.Color("#424242"),
	},
}

type activityStyle struct {
	color lipgloss.Color
	icon  string
}

var activityStyles = map[string]activityStyle{
	string(domain.ActivityRunning): {color: lipgloss.Color("#F44336"), icon: "🏃"},
	string(domain.ActivityWalking): {color: lipgloss.Color("#4CAF50"), icon: "🚶"},
	string(domain.ActivityCycling): {color: lipgloss.Color("#2196F3"), icon: "🚴"},
}

var defaultActivityStyle = activityStyle{color: lipgloss.Color("#9C27B0"), icon: "💪"}

func styleFor(activityType string) activityStyle {
	if s, ok := activityStyles[strings.ToUpper(activityType)]; ok {
		return s
	}
	return defaultActivityStyle
}

// ActivityIcon returns the emoji shown next to an activity type.
func ActivityIcon(activityType string) string { return styleFor(activityType).icon }

// Renderer formats API views for the terminal.
type Renderer struct {
	palette Palette
	title   lipgloss.Style
	muted   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	success lipgloss.Style
	danger  lipgloss.Style
}

// NewRenderer builds a Renderer for the theme. Unknown themes render light.
func NewRenderer(theme string) *Renderer {
	t, err := domain.ParseTheme(theme)
	if err != nil {
		t = domain.ThemeLight
	}
	p := palettes[t]
	return &Renderer{
		palette: p,
		title:   lipgloss.NewStyle().Foreground(p.Primary).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(p.Muted),
		label:   lipgloss.NewStyle().Foreground(p.Muted),
		value:   lipgloss.NewStyle().Foreground(p.Text).Bold(true),
		success: lipgloss.NewStyle().Foreground(p.Success),
		danger:  lipgloss.NewStyle().Foreground(p.Danger),
	}
}

func (r *Renderer) card(content string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(r.palette.Border).
		Padding(0, 2).
		Render(content)
}

func (r *Renderer) accentCard(color lipgloss.Color, content string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 2).
		Render(content)
}

// Success renders a confirmation card.
func (r *Renderer) Success(title string, details ...string) string {
	body := r.success.Render("✓") + " " + title
	if len(details) > 0 {
		body += "\n\n" + strings.Join(details, "\n")
	}
	return r.card(body)
}

// Error renders an error line.
func (r *Renderer) Error(err error) string {
	return r.danger.Render("✗ " + err.Error())
}

func (r *Renderer) activityHeading(a api.ActivityView) string {
	s := styleFor(a.ActivityType)
	name := domain.ActivityType(a.ActivityType).Label()
	return lipgloss.NewStyle().Foreground(s.color).Bold(true).Render(s.icon + " " + name)
}

// ActivityList renders one card per activity.
func (r *Renderer) ActivityList(items []api.ActivityView, nextCursor string) string {
	if len(items) == 0 {
		return r.muted.Render("No activities yet. Add one with: fitctl activities add --duration 30 --calories 250")
	}
	cards := make([]string, 0, len(items))
	for _, a := range items {
		s := styleFor(a.ActivityType)
		body := fmt.Sprintf("%s\n%s %s   %s %s\n%s",
			r.activityHeading(a),
			r.label.Render("Duration:"), r.value.Render(fmt.Sprintf("%d min", a.DurationMin)),
			r.label.Render("Calories:"), r.value.Render(fmt.Sprintf("%d kcal", a.CaloriesBurned)),
			r.muted.Render(a.StartedAt.Local().Format("Mon 02 Jan 2006 15:04")+"  "+a.ActivityID),
		)
		cards = append(cards, r.accentCard(s.color, body))
	}
	out := strings.Join(cards, "\n")
	if nextCursor != "" {
		out += "\n" + r.muted.Render("More results: --cursor "+nextCursor)
	}
	return out
}

// ActivityDetail renders an activity with its recommendation, if any.
func (r *Renderer) ActivityDetail(a api.ActivityView, rec *api.RecommendationView) string {
	s := styleFor(a.ActivityType)
	var b strings.Builder
	b.WriteString(r.activityHeading(a) + "\n\n")
	r.row(&b, "Duration", fmt.Sprintf("%d minutes", a.DurationMin))
	r.row(&b, "Calories Burned", fmt.Sprintf("%d kcal", a.CaloriesBurned))
	r.row(&b, "Started", a.StartedAt.Local().Format(time.RFC1123))
	if len(a.AdditionalMetrics) > 0 {
		keys := make([]string, 0, len(a.AdditionalMetrics))
		for k := range a.AdditionalMetrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			r.row(&b, k, fmt.Sprint(a.AdditionalMetrics[k]))
		}
	}
	out := r.accentCard(s.color, strings.TrimRight(b.String(), "\n"))

	if rec == nil {
		return out + "\n" + r.muted.Render("Recommendation is being generated. Check back shortly.")
	}
	return out + "\n" + r.Recommendation(*rec)
}

// Recommendation renders the analysis, improvements, suggestions and safety notes.
func (r *Renderer) Recommendation(rec api.RecommendationView) string {
	var b strings.Builder
	b.WriteString(r.title.Render("AI Recommendation") + r.muted.Render(" ("+rec.Generator+")") + "\n\n")
	b.WriteString(rec.Analysis + "\n")
	r.section(&b, "Improvements", rec.Improvements)
	r.section(&b, "Suggestions", rec.Suggestions)
	r.section(&b, "Safety Guidelines", rec.Safety)
	return r.card(strings.TrimRight(b.String(), "\n"))
}

// Recommendations renders every recommendation, newest first.
func (r *Renderer) Recommendations(recs []api.RecommendationView) string {
	if len(recs) == 0 {
		return r.muted.Render("No recommendations yet.")
	}
	parts := make([]string, 0, len(recs))
	for _, rec := range recs {
		heading := ActivityIcon(rec.ActivityType) + " " + domain.ActivityType(rec.ActivityType).Label() + "  " + r.muted.Render(rec.ActivityID)
		parts = append(parts, heading+"\n"+r.Recommendation(rec))
	}
	return strings.Join(parts, "\n\n")
}

// Dashboard renders the stat cards, weekly progress and type breakdown.
func (r *Renderer) Dashboard(d api.DashboardView) string {
	stats := []string{
		r.statCard("Total Activities", fmt.Sprint(d.TotalActivities)),
		r.statCard("Total Calories", fmt.Sprintf("%d kcal", d.TotalCalories)),
		r.statCard("Total Duration", fmt.Sprintf("%d min", d.TotalDurationMin)),
		r.statCard("Avg. Duration", fmt.Sprintf("%d min", d.AverageDurationMin)),
	}
	out := lipgloss.JoinHorizontal(lipgloss.Top, stats...)

	var weekly strings.Builder
	weekly.WriteString(r.title.Render("Weekly Progress") + "\n")
	weekly.WriteString(ProgressBar(d.Weekly.ProgressPct, 30, r.palette) + "\n")
	weekly.WriteString(r.muted.Render(fmt.Sprintf("%d / %d kcal (%.0f%%) across %d activities in the last 7 days",
		d.Weekly.Calories, d.Weekly.Goal, d.Weekly.ProgressPct, d.Weekly.Activities)))
	out += "\n" + r.card(weekly.String())

	if len(d.ActivityTypes) > 0 {
		chips := make([]string, 0, len(d.ActivityTypes))
		for _, t := range d.ActivityTypes {
			s := styleFor(t)
			chips = append(chips, lipgloss.NewStyle().Foreground(s.color).Render(s.icon+" "+domain.ActivityType(t).Label()))
		}
		types := r.title.Render("Activity Types") + "\n" + strings.Join(chips, "  ")
		for _, bt := range d.ByType {
			types += "\n" + r.muted.Render(fmt.Sprintf("%-8s %3d sessions  %6d kcal  %5d min",
				domain.ActivityType(bt.ActivityType).Label(), bt.Count, bt.Calories, bt.DurationMin))
		}
		out += "\n" + r.card(types)
	}

	if len(d.Recent) > 0 {
		var recent strings.Builder
		recent.WriteString(r.title.Render("Recent Activities"))
		for _, a := range d.Recent {
			fmt.Fprintf(&recent, "\n%s %-8s %4d min %5d kcal  %s",
				ActivityIcon(a.ActivityType), domain.ActivityType(a.ActivityType).Label(),
				a.DurationMin, a.CaloriesBurned, r.muted.Render(a.StartedAt.Local().Format("02 Jan 15:04")))
		}
		out += "\n" + r.card(recent.String())
	}
	return out
}

// User renders the identity behind the current token.
func (r *Renderer) User(u api.UserView) string {
	var b strings.Builder
	b.WriteString(r.title.Render("Signed in") + "\n\n")
	r.row(&b, "Subject", u.Subject)
	if u.Name != "" {
		r.row(&b, "Name", u.Name)
	}
	if u.Email != "" {
		r.row(&b, "Email", u.Email)
	}
	r.row(&b, "Scopes", strings.Join(u.Scopes, " "))
	if u.ExpiresAt != nil {
		r.row(&b, "Expires", u.ExpiresAt.Local().Format(time.RFC1123))
	}
	return r.card(strings.TrimRight(b.String(), "\n"))
}

func (r *Renderer) statCard(label, value string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(r.palette.Border).
		Padding(0, 1).
		Width(20).
		Render(r.label.Render(label) + "\n" + r.value.Render(value))
}

func (r *Renderer) row(b *strings.Builder, label, value string) {
	b.WriteString(r.label.Render(fmt.Sprintf("%-16s", label+":")) + " " + r.value.Render(value) + "\n")
}

func (r *Renderer) section(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n" + r.title.Render(title) + "\n")
	for _, item := range items {
		b.WriteString("  • " + item + "\n")
	}
}

// ProgressBar draws a bar of width cells filled to pct (0-100).
func ProgressBar(pct float64, width int, p Palette) string {
	if width <= 0 {
		return ""
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * float64(width))
	fill := lipgloss.NewStyle().Foreground(p.Success).Render(strings.Repeat("█", filled))
	track := lipgloss.NewStyle().Foreground(p.Track).Render(strings.Repeat("░", width-filled))
	return fill + track
}
