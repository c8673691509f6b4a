package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	app := &cli.App{
		Name:    "eventsync",
		Usage:   "Browse scraped campus events, export them, and add them to Google Calendar",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to JSON or YAML config file",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose output (show DEBUG logs)",
			},
			&cli.StringFlag{
				Name:  "database-url",
				Usage: "Realtime database URL (overrides config file and EVENTS_DATABASE_URL env var)",
			},
			&cli.StringFlag{
				Name:  "google-credentials-path",
				Usage: "Path to Google OAuth credentials JSON file (overrides config file and GOOGLE_CREDENTIALS_PATH env var)",
			},
			&cli.StringFlag{
				Name:  "token-store",
				Usage: "Token store kind: file or sqlite (overrides config file and TOKEN_STORE env var)",
			},
			&cli.StringFlag{
				Name:  "token-store-path",
				Usage: "Where the calendar token is kept (overrides config file and TOKEN_STORE_PATH env var)",
			},
		},
		Before: func(c *cli.Context) error {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "browse",
				Usage: "List upcoming events",
				Flags: append(queryFlags(),
					&cli.IntFlag{
						Name:    "pages",
						Aliases: []string{"p"},
						Value:   1,
						Usage:   "Number of pages to show",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON",
					},
				),
				Action: browseEvents,
			},
			{
				Name:   "categories",
				Usage:  "List event categories",
				Action: listCategories,
			},
			{
				Name:  "export",
				Usage: "Export events to an iCal or CSV file",
				Flags: append(queryFlags(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "ical",
						Usage:   "Export format: ical or csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file, - for stdout (default: uiuc-events.ics or uiuc-events.csv)",
					},
				),
				Action: exportEvents,
			},
			{
				Name:   "connect",
				Usage:  "Connect to Google Calendar",
				Action: connectCalendar,
			},
			{
				Name:   "status",
				Usage:  "Show the Google Calendar connection",
				Action: showStatus,
			},
			{
				Name:   "disconnect",
				Usage:  "Disconnect from Google Calendar and revoke access",
				Action: disconnectCalendar,
			},
			{
				Name:  "add",
				Usage: "Add an event to Google Calendar",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Event ID",
						Required: true,
					},
				},
				Action: addEvent,
			},
			{
				Name:  "emails",
				Usage: "Extract events from recent emails",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "amount",
						Aliases: []string{"n"},
						Value:   5,
						Usage:   "Number of emails to process (1-25)",
					},
					&cli.StringFlag{
						Name:  "backend-url",
						Usage: "Email extraction backend (overrides config file and EMAIL_BACKEND_URL env var)",
					},
				},
				Action: processEmails,
			},
			{
				Name:   "session",
				Usage:  "Keep the Google Calendar session alive until interrupted",
				Action: keepSession,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "search",
			Aliases: []string{"s"},
			Usage:   "Only events whose title, description or location contain TEXT",
		},
		&cli.StringFlag{
			Name:    "category",
			Aliases: []string{"c"},
			Value:   "all",
			Usage:   "Only events with this category",
		},
	}
}
