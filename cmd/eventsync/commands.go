package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/beekhof/event-sync/internal/auth"
	calclient "github.com/beekhof/event-sync/internal/calendar"
	"github.com/beekhof/event-sync/internal/event"
	"github.com/beekhof/event-sync/internal/export"
	"github.com/beekhof/event-sync/internal/store"
	"github.com/beekhof/event-sync/internal/stream"
)

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func queryFrom(c *cli.Context) store.Query {
	return store.Query{Text: c.String("search"), Category: c.String("category")}
}

func printCard(w io.Writer, ev event.DisplayEvent) {
	fmt.Fprintf(w, "%s\n", ev.Title())
	fmt.Fprintf(w, "  %s · %s\n", ev.DateLabel(), ev.CardTimeLabel())
	fmt.Fprintf(w, "  %s\n", ev.LocationLabel())
	fmt.Fprintf(w, "  [%s]", ev.CategoryLabel())
	if ev.ID != "" {
		fmt.Fprintf(w, " id=%s", ev.ID)
	}
	fmt.Fprintln(w)
}

func browseEvents(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, _, err := loadEvents(c, cfg)
	if err != nil {
		return err
	}

	filtered := st.Apply(queryFrom(c))
	for i := 0; i < c.Int("pages"); i++ {
		if len(st.NextPage()) == 0 {
			break
		}
	}
	rendered := st.Rendered()

	if c.Bool("json") {
		return outputJSON(rendered)
	}

	if len(filtered) == 0 {
		if st.Err() != nil {
			fmt.Println("Error loading events")
		} else {
			fmt.Println("No events found")
		}
		return nil
	}

	for _, ev := range rendered {
		printCard(os.Stdout, ev)
	}
	if st.HasMore() {
		fmt.Printf("\nLoad More (%d remaining)\n", st.Remaining())
	}
	return nil
}

func listCategories(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, _, err := loadEvents(c, cfg)
	if err != nil {
		return err
	}

	for _, category := range st.Categories() {
		fmt.Println(category)
	}
	return nil
}

func exportEvents(c *cli.Context) error {
	format, err := export.ParseFormat(c.String("format"))
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, loc, err := loadEvents(c, cfg)
	if err != nil {
		return err
	}
	if c.IsSet("search") || c.IsSet("category") {
		st.Apply(queryFrom(c))
	}

	artifact, err := export.NewEncoder(loc).Encode(format, st.ExportSet())
	if errors.Is(err, export.ErrNoEvents) {
		log.Printf("Warning: No events available to export")
		return nil
	}
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}

	output := c.String("output")
	if output == "" {
		output = artifact.FileName
	}
	if output == "-" {
		_, err := os.Stdout.Write(artifact.Body)
		return err
	}
	if err := os.WriteFile(output, artifact.Body, 0644); err != nil {
		return cli.Exit(fmt.Sprintf("failed to write %s: %v", output, err), ExitDataError)
	}

	plural := "s"
	if artifact.Count == 1 {
		plural = ""
	}
	fmt.Printf("Exported %d event%s to %s (%s)\n", artifact.Count, plural, output, artifact.MIMEType)
	return nil
}

func connectCalendar(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	env, err := newSession(cfg, newConsoleNotifier())
	if err != nil {
		return err
	}
	defer env.Close()

	env.session.Restore()
	token, err := env.session.Connect(c.Context, true)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to connect to Google Calendar: %v", err), ExitGeneralError)
	}
	debugf(c, "token expires at %s", token.Expiry.Format(time.RFC3339))

	fmt.Println("Connected to Google Calendar")
	reportPrimaryCalendar(c.Context, env.session)
	return nil
}

func showStatus(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	env, err := newSession(cfg, newConsoleNotifier())
	if err != nil {
		return err
	}
	defer env.Close()

	state := env.session.Restore()
	fmt.Printf("Google Calendar: %s\n", state)
	if token := env.session.Token(); token != nil {
		fmt.Printf("Token expires: %s (in %s)\n",
			token.Expiry.Local().Format(time.RFC1123), time.Until(token.Expiry).Round(time.Second))
		reportPrimaryCalendar(c.Context, env.session)
	}
	return nil
}

func disconnectCalendar(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	env, err := newSession(cfg, newConsoleNotifier())
	if err != nil {
		return err
	}
	defer env.Close()

	// Disconnect revokes the stored grant even when its access token has
	// expired, so it must see storage before Restore purges it.
	if err := env.session.Disconnect(c.Context); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to clear stored token: %v", err), ExitDataError)
	}
	return nil
}

func addEvent(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, _, err := loadEvents(c, cfg)
	if err != nil {
		return err
	}

	id := c.String("id")
	ev, ok := st.Find(id)
	if !ok {
		return cli.Exit(fmt.Sprintf("Event %s not found", id), ExitDataError)
	}

	env, err := newSession(cfg, newConsoleNotifier())
	if err != nil {
		return err
	}
	defer env.Close()

	env.session.Restore()
	created, err := env.session.AddEvent(c.Context, calclient.DraftFromEvent(ev, cfg.TimeZone))
	var validationErr *calclient.ValidationError
	switch {
	case errors.Is(err, auth.ErrNotConnected):
		return cli.Exit("Please connect to Google Calendar first (eventsync connect)", ExitUsageError)
	case errors.As(err, &validationErr):
		return cli.Exit(validationErr.Error(), ExitDataError)
	case errors.Is(err, auth.ErrProviderRejected):
		return cli.Exit(fmt.Sprintf("Google Calendar rejected the request, try reconnecting: %v", err), ExitGeneralError)
	case err != nil:
		return cli.Exit(fmt.Sprintf("Failed to add event: %v", err), ExitGeneralError)
	}

	fmt.Printf("Added \"%s\" to your calendar\n", ev.Title())
	if created.HtmlLink != "" {
		fmt.Println(created.HtmlLink)
	}
	return nil
}

func processEmails(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	amount := c.Int("amount")
	fmt.Printf("Fetching and analyzing %d emails. This may take a minute.\n", amount)

	summary, err := stream.NewClient(cfg.BackendURL).Process(c.Context, amount, event.NewNormalizer(loc), stream.Handlers{
		Status: func(message string) { fmt.Println(message) },
		Progress: func(current, total int) {
			fmt.Printf("Analyzing email %d of %d...\n", current, total)
		},
		Event: func(ev event.DisplayEvent) { printCard(os.Stdout, ev) },
	})
	if errors.Is(err, stream.ErrInvalidAmount) {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	var streamErr *stream.StreamError
	if errors.As(err, &streamErr) {
		if summary != nil && len(summary.Events) > 0 {
			fmt.Printf("Kept %d event(s) found before the failure\n", len(summary.Events))
		}
		return cli.Exit(streamErr.Error(), ExitGeneralError)
	}
	if err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}

	if len(summary.Events) == 0 {
		fmt.Println("No events found in emails")
	}
	plural := "s"
	if len(summary.Events) == 1 {
		plural = ""
	}
	fmt.Printf("Processed %d emails, found %d event%s.\n", summary.EmailsProcessed, len(summary.Events), plural)
	return nil
}

func keepSession(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	notifier := newConsoleNotifier()
	env, err := newSession(cfg, notifier)
	if err != nil {
		return err
	}
	defer env.Close()

	if env.session.Restore() != auth.Connected {
		return cli.Exit("Not connected to Google Calendar (eventsync connect)", ExitUsageError)
	}
	fmt.Printf("Session active until %s; refreshing in the background. Press Ctrl+C to stop.\n",
		env.session.Token().Expiry.Local().Format(time.Kitchen))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		return nil
	case <-notifier.expired:
		return cli.Exit("Session ended", ExitGeneralError)
	}
}

func primaryCalendarID(entries []*gcal.CalendarListEntry) string {
	if primary := calclient.PrimaryCalendar(entries); primary != nil {
		return primary.Id
	}
	return ""
}
