// Package source reads scraped events from the Firebase Realtime Database
// REST API.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/beekhof/event-sync/internal/event"
)

// DefaultEventsPath is the database node the scraper writes to.
const DefaultEventsPath = "scraped_events"

// FetchError reports that the data source was unreachable or returned
// something that is not an event mapping.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch events from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client fetches the event mapping once per call. There is no live
// subscription.
type Client struct {
	httpClient  *http.Client
	databaseURL string
	path        string
	auth        string
}

// NewClient creates a client for the database at databaseURL
// (e.g. "https://example-default-rtdb.firebaseio.com"). path is the node
// holding the events; empty means DefaultEventsPath. auth is an optional
// database secret or ID token sent as the "auth" query parameter.
func NewClient(databaseURL, path, auth string) *Client {
	if path == "" {
		path = DefaultEventsPath
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		databaseURL: databaseURL,
		path:        path,
		auth:        auth,
	}
}

// endpoint returns the REST URL of the events node.
func (c *Client) endpoint() string {
	u := strings.TrimSuffix(c.databaseURL, "/") + "/" + strings.Trim(c.path, "/") + ".json"
	if c.auth != "" {
		u += "?auth=" + url.QueryEscape(c.auth)
	}
	return u
}

// FetchEvents returns every record under the events node. Map keys become
// event ids and records are returned in key order. A missing node is not an
// error: it yields an empty slice.
func (c *Client) FetchEvents(ctx context.Context) ([]event.RawEvent, error) {
	endpoint := c.endpoint()
	display := strings.SplitN(endpoint, "?", 2)[0]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{URL: display, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: display, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: display, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: display, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	events, err := decodeEvents(body)
	if err != nil {
		return nil, &FetchError{URL: display, Err: err}
	}
	return events, nil
}

// decodeEvents parses the id -> record mapping. Individual records that are
// not objects are skipped.
func decodeEvents(body []byte) ([]event.RawEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	var records map[string]json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}

	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	events := make([]event.RawEvent, 0, len(keys))
	for _, key := range keys {
		if bytes.Equal(records[key], []byte("null")) {
			continue
		}
		var raw event.RawEvent
		if err := json.Unmarshal(records[key], &raw); err != nil {
			log.Printf("Warning: skipping malformed event %s: %v", key, err)
			continue
		}
		raw.ID = key
		events = append(events, raw)
	}
	return events, nil
}
