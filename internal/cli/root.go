// Package cli implements fitctl, the terminal client for the fittrack API.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"example.com/fittrack/internal/api"
	"example.com/fittrack/internal/client"
	"example.com/fittrack/internal/domain"
)

// errNotLoggedIn is returned by commands that need a token.
var errNotLoggedIn = errors.New("not logged in, run 'fitctl login' first")

// App carries state shared by the fitctl commands.
type App struct {
	configPath string
	apiURL     string
	settings   Settings
	browser    BrowserOpener
	now        func() time.Time
}

// Option configures an App.
type Option func(*App)

// WithBrowser replaces the browser launcher used by login.
func WithBrowser(open BrowserOpener) Option {
	return func(a *App) { a.browser = open }
}

// WithConfigPath sets the default config file location.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// NewRootCmd builds the fitctl command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	app := &App{configPath: DefaultConfigPath(), browser: OpenBrowser, now: time.Now}
	for _, opt := range opts {
		opt(app)
	}

	root := &cobra.Command{
		Use:           "fitctl",
		Short:         "Track workouts, dashboards and recommendations from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, err := LoadSettings(app.configPath)
			if err != nil {
				return err
			}
			if app.apiURL != "" {
				s.APIURL = app.apiURL
			}
			app.settings = s
			return nil
		},
	}
	root.PersistentFlags().StringVar(&app.configPath, "config", app.configPath, "config file")
	root.PersistentFlags().StringVar(&app.apiURL, "api-url", "", "API base URL (overrides the config file)")

	root.AddCommand(
		app.newLoginCmd(),
		app.newLogoutCmd(),
		app.newWhoamiCmd(),
		app.newActivitiesCmd(),
		app.newDashboardCmd(),
		app.newRecommendationsCmd(),
		app.newThemeCmd(),
	)
	return root
}

// Execute runs fitctl with os.Args.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(root.ErrOrStderr(), NewRenderer("").Error(err))
		return err
	}
	return nil
}

func (a *App) renderer() *Renderer { return NewRenderer(a.settings.Theme) }

func (a *App) save() error { return SaveSettings(a.configPath, a.settings) }

// authedClient returns an API client or errNotLoggedIn.
func (a *App) authedClient() (*client.Client, error) {
	if !a.settings.LoggedIn(a.now()) {
		return nil, errNotLoggedIn
	}
	return client.New(a.settings.APIURL, a.settings.Token), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeLine(w io.Writer, s string) {
	_, _ = fmt.Fprintln(w, s)
}

func (a *App) newLoginCmd() *cobra.Command {
	var (
		noBrowser bool
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			c := client.New(a.settings.APIURL, "")
			open := a.browser
			if noBrowser {
				open = func(url string) error {
					writeLine(out, "Open this URL to sign in:\n"+url)
					return nil
				}
			} else {
				writeLine(out, "Opening browser to sign in...")
			}

			res, err := loopbackLogin(commandContext(cmd), c.LoginURL, open, timeout)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			a.settings.Token = res.Token
			a.settings.ExpiresAt = res.ExpiresAt
			if err := a.save(); err != nil {
				return err
			}

			detail := "Token stored in " + a.configPath
			me, err := client.New(a.settings.APIURL, res.Token).Me(commandContext(cmd))
			if err == nil {
				detail = fmt.Sprintf("Signed in as %s\n%s", displayName(me), detail)
			}
			writeLine(out, a.renderer().Success("Logged in", detail))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the login URL instead of opening a browser")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the browser login")
	return cmd
}

func displayName(u api.UserView) string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return u.Subject
	}
}

func (a *App) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			var details []string
			if c, err := a.authedClient(); err == nil {
				if resp, err := c.Logout(commandContext(cmd)); err == nil && resp.LogoutURL != "" {
					details = append(details, "End your provider session at:\n"+resp.LogoutURL)
				}
			}
			a.settings.Token = ""
			a.settings.ExpiresAt = time.Time{}
			if err := a.save(); err != nil {
				return err
			}
			writeLine(out, a.renderer().Success("Logged out", details...))
			return nil
		},
	}
}

func (a *App) newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			me, err := c.Me(commandContext(cmd))
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), a.renderer().User(me))
			return nil
		},
	}
}

func (a *App) newActivitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "activities",
		Aliases: []string{"activity", "a"},
		Short:   "Record and browse activities",
	}
	cmd.AddCommand(a.newActivityAddCmd(), a.newActivityListCmd(), a.newActivityShowCmd(), a.newActivityDeleteCmd())
	return cmd
}

func (a *App) newActivityAddCmd() *cobra.Command {
	var (
		form           ActivityForm
		idempotencyKey string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an activity",
		Example: `  fitctl activities add --type running --duration 30 --calories 300
  fitctl activities add --type cycling --duration 60 --calories 550 --metric distance_km=24.5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := form.Request()
			if err != nil {
				return err
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			if idempotencyKey == "" {
				idempotencyKey = uuid.NewString()
			}
			created, err := c.CreateActivity(commandContext(cmd), req, idempotencyKey)
			if err != nil {
				return err
			}
			title := "Activity added"
			if created.Replay {
				title = "Activity already recorded"
			}
			writeLine(cmd.OutOrStdout(), a.renderer().Success(title,
				fmt.Sprintf("%s %s  %d min  %d kcal", ActivityIcon(created.ActivityType), domain.ActivityType(created.ActivityType).Label(), created.DurationMin, created.CaloriesBurned),
				"ID: "+created.ActivityID,
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&form.Type, "type", "t", string(domain.DefaultActivityType), "activity type: running, walking or cycling")
	cmd.Flags().IntVarP(&form.Duration, "duration", "d", 0, "duration in minutes")
	cmd.Flags().IntVarP(&form.Calories, "calories", "c", 0, "calories burned")
	cmd.Flags().StringVar(&form.StartedAt, "started-at", "", "start time (RFC3339 or YYYY-MM-DD HH:MM), defaults to now")
	cmd.Flags().StringArrayVarP(&form.Metrics, "metric", "m", nil, "additional metric as key=value, repeatable")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "key that makes retries safe, generated when empty")
	return cmd
}

func (a *App) newActivityListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			page, err := c.ListActivities(commandContext(cmd), limit, cursor)
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), a.renderer().ActivityList(page.Items, page.NextCursor))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", domain.DefaultPageSize, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	return cmd
}

func (a *App) newActivityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an activity and its recommendation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			activity, err := c.GetActivity(ctx, args[0])
			if err != nil {
				return err
			}
			rec, err := c.ActivityRecommendation(ctx, args[0])
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), a.renderer().ActivityDetail(activity, rec))
			return nil
		},
	}
}

func (a *App) newActivityDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete an activity",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			if err := c.DeleteActivity(commandContext(cmd), args[0]); err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), a.renderer().Success("Activity deleted", "ID: "+args[0]))
			return nil
		},
	}
}

func (a *App) newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show totals, averages and weekly progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			d, err := c.Dashboard(commandContext(cmd))
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), a.renderer().Dashboard(d))
			return nil
		},
	}
}

func (a *App) newRecommendationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "List workout recommendations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			recs, err := c.Recommendations(commandContext(cmd))
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), a.renderer().Recommendations(recs))
			return nil
		},
	}
}

func (a *App) newThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark|toggle]",
		Short:     "Show or change the color theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"light", "dark", "toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			current, err := domain.ParseTheme(a.settings.Theme)
			if err != nil {
				current = domain.ThemeLight
			}
			if len(args) == 0 {
				writeLine(out, "Current theme: "+string(current))
				return nil
			}

			next := current.Toggle()
			if args[0] != "toggle" {
				if next, err = domain.ParseTheme(args[0]); err != nil {
					return err
				}
			}
			a.settings.Theme = string(next)
			if err := a.save(); err != nil {
				return err
			}

			var details []string
			if c, err := a.authedClient(); err == nil {
				theme := string(next)
				if _, err := c.UpdatePreferences(commandContext(cmd), api.PreferencesRequest{Theme: &theme}); err != nil {
					details = append(details, "Could not sync with the server: "+err.Error())
				} else {
					details = append(details, "Synced with your account")
				}
			}
			writeLine(out, a.renderer().Success("Theme set to "+string(next), details...))
			return nil
		},
	}
}
