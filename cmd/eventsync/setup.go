package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"github.com/beekhof/event-sync/internal/auth"
	"github.com/beekhof/event-sync/internal/config"
	"github.com/beekhof/event-sync/internal/event"
	"github.com/beekhof/event-sync/internal/kvstore"
	"github.com/beekhof/event-sync/internal/source"
	"github.com/beekhof/event-sync/internal/store"
)

var calendarScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/calendar.events",
}

// loadConfig resolves configuration for the command being run
// (precedence: flags > env vars > config file > defaults).
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"), config.Flags{
		DatabaseURL:           c.String("database-url"),
		GoogleCredentialsPath: c.String("google-credentials-path"),
		TokenStore:            c.String("token-store"),
		TokenStorePath:        c.String("token-store-path"),
		BackendURL:            c.String("backend-url"),
	})
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("Failed to load config: %v", err), ExitUsageError)
	}
	return cfg, nil
}

func debugf(c *cli.Context, format string, args ...any) {
	if c.Bool("verbose") {
		log.Printf("DEBUG: "+format, args...)
	}
}

// loadEvents fetches the scraped events into a new store. A failed fetch
// is reported and leaves the store empty.
func loadEvents(c *cli.Context, cfg *config.Config) (*store.Store, *time.Location, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, nil, cli.Exit(err.Error(), ExitUsageError)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), ExitUsageError)
	}

	st := store.New(event.NewNormalizer(loc), time.Now)
	src := source.NewClient(cfg.DatabaseURL, cfg.EventsPath, cfg.DatabaseAuth)

	debugf(c, "fetching events from %s/%s", cfg.DatabaseURL, cfg.EventsPath)
	if err := st.LoadFrom(c.Context, src); err != nil {
		log.Printf("Warning: Error loading events: %v", err)
	}
	debugf(c, "store state %s with %d upcoming events", st.State(), st.Len())

	return st, loc, nil
}

// openTokenStore opens the durable key-value store holding the token pair.
func openTokenStore(cfg *config.Config) (kvstore.Store, error) {
	switch cfg.TokenStore {
	case config.TokenStoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.TokenStorePath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create token store directory: %w", err)
		}
		return kvstore.NewSQLiteStore(cfg.TokenStorePath)
	default:
		return kvstore.NewFileStore(cfg.TokenStorePath), nil
	}
}

// sessionEnv bundles a calendar session with the store it persists to.
type sessionEnv struct {
	session *auth.Session
	kv      kvstore.Store
}

func (env *sessionEnv) Close() {
	env.session.Close()
	if err := env.kv.Close(); err != nil {
		log.Printf("Warning: failed to close token store: %v", err)
	}
}

// newSession builds a calendar session from the Google OAuth client
// configuration. It does not restore or connect.
func newSession(cfg *config.Config, notifier auth.Notifier) (*sessionEnv, error) {
	if err := cfg.RequireCalendar(); err != nil {
		return nil, cli.Exit(err.Error(), ExitUsageError)
	}

	clientID, clientSecret, err := config.LoadGoogleCredentials(cfg.GoogleCredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load Google credentials: %w", err)
	}

	googleOAuthConfig := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "http://127.0.0.1:8080", // Replaced per request by the consent flow
		Scopes:       calendarScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}

	kv, err := openTokenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	session := auth.NewSession(auth.NewGoogleProvider(googleOAuthConfig), auth.NewTokenStore(kv), auth.Options{
		RefreshLead: cfg.RefreshLead(),
		CalendarID:  cfg.CalendarID,
		Notifier:    notifier,
	})
	return &sessionEnv{session: session, kv: kv}, nil
}

// consoleNotifier prints session notices and reports session expiry.
type consoleNotifier struct {
	expired chan struct{}
}

func newConsoleNotifier() *consoleNotifier {
	return &consoleNotifier{expired: make(chan struct{}, 1)}
}

func (n *consoleNotifier) Notify(level auth.NoticeLevel, message string) {
	fmt.Printf("[%s] %s\n", level, message)
	if level == auth.NoticeWarning {
		select {
		case n.expired <- struct{}{}:
		default:
		}
	}
}

// reportPrimaryCalendar prints the account the session is connected to.
func reportPrimaryCalendar(ctx context.Context, session *auth.Session) {
	entries, err := session.ListCalendars(ctx)
	if err != nil {
		log.Printf("Warning: failed to list calendars: %v", err)
		return
	}
	if primary := primaryCalendarID(entries); primary != "" {
		fmt.Printf("Connected as %s\n", primary)
	}
}
