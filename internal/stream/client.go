package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/beekhof/event-sync/internal/event"
)

// Bounds of the email count a single request may process.
const (
	MinAmount = 1
	MaxAmount = 25
)

// DefaultBackendURL is where the extraction backend listens by default.
const DefaultBackendURL = "http://127.0.0.1:5000"

const streamPath = "/api/process_emails_stream"

// ErrInvalidAmount is returned, before any request is made, for an email
// count outside MinAmount..MaxAmount.
var ErrInvalidAmount = fmt.Errorf("amount must be between %d and %d", MinAmount, MaxAmount)

// errStreamDone stops decoding after a terminal message.
var errStreamDone = errors.New("stream complete")

// StreamError reports a failure the backend sent or a stream that ended
// early. Events delivered before it are kept.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "email stream failed: " + e.Message
}

// Handlers receive stream progress. Nil handlers are skipped.
type Handlers struct {
	Status   func(message string)
	Progress func(current, total int)
	Event    func(ev event.DisplayEvent)
}

// Summary is the outcome of one stream. Events holds every event received,
// including those delivered before a failure.
type Summary struct {
	Events          []event.DisplayEvent
	EmailsProcessed int
	EventsFound     int
	Completed       bool
}

// Client talks to the extraction backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for the backend at baseURL. An empty baseURL
// means DefaultBackendURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBackendURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: the stream stays open while emails are parsed.
		HTTPClient: &http.Client{},
	}
}

// Process asks the backend to process amount emails and consumes the
// resulting stream. Each event message is normalized before it reaches
// h.Event. The returned Summary is non-nil whenever a request was made.
func (c *Client) Process(ctx context.Context, amount int, normalizer *event.Normalizer, h Handlers) (*Summary, error) {
	if amount < MinAmount || amount > MaxAmount {
		return nil, ErrInvalidAmount
	}

	endpoint := c.BaseURL + streamPath + "?" + url.Values{"amount": {strconv.Itoa(amount)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	summary := &Summary{}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return summary, &StreamError{Message: fmt.Sprintf("lost connection to server: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return summary, &StreamError{Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	var streamErr *StreamError
	err = Decode(resp.Body, func(msg Message) error {
		switch msg.Type {
		case TypeStatus:
			if h.Status != nil {
				h.Status(msg.Message)
			}
		case TypeProgress:
			if h.Progress != nil {
				h.Progress(msg.Current, msg.Total)
			}
		case TypeEvent:
			if msg.Event == nil {
				log.Printf("Warning: event message without event payload")
				return nil
			}
			ev := normalizer.Normalize(*msg.Event)
			summary.Events = append(summary.Events, ev)
			if h.Event != nil {
				h.Event(ev)
			}
		case TypeComplete:
			summary.EmailsProcessed = msg.EmailsProcessed
			summary.EventsFound = msg.EventsFound
			summary.Completed = true
			return errStreamDone
		case TypeError:
			text := msg.Message
			if text == "" {
				text = "failed to process emails"
			}
			streamErr = &StreamError{Message: text}
			return errStreamDone
		default:
			log.Printf("DEBUG: ignoring stream message of type %q", msg.Type)
		}
		return nil
	})

	switch {
	case streamErr != nil:
		return summary, streamErr
	case err != nil && !errors.Is(err, errStreamDone):
		return summary, &StreamError{Message: err.Error()}
	case !summary.Completed:
		return summary, &StreamError{Message: "stream ended before completion"}
	}
	return summary, nil
}
