// Package stream consumes the email-extraction backend's server-sent event
// stream and turns its event messages into display events.
package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/beekhof/event-sync/internal/event"
)

// Message types sent by the backend.
const (
	TypeStatus   = "status"
	TypeProgress = "progress"
	TypeEvent    = "event"
	TypeComplete = "complete"
	TypeError    = "error"
)

// Message is one decoded stream message. Only the fields of its Type are set.
type Message struct {
	Type            string          `json:"type"`
	Message         string          `json:"message,omitempty"`
	Current         int             `json:"current,omitempty"`
	Total           int             `json:"total,omitempty"`
	Event           *event.RawEvent `json:"event,omitempty"`
	EmailsProcessed int             `json:"emails_processed,omitempty"`
	EventsFound     int             `json:"events_found,omitempty"`
}

const maxLineSize = 1 << 20

// Decode reads server-sent events from r and calls fn with each decoded
// message, stopping at the first error fn returns. Multi-line data fields
// are joined with newlines. A trailing event without its terminating blank
// line is discarded.
func Decode(r io.Reader, fn func(Message) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var data []string
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if line == "" {
			if len(data) == 0 {
				continue
			}
			payload := strings.Join(data, "\n")
			data = data[:0]

			var msg Message
			if err := json.Unmarshal([]byte(payload), &msg); err != nil {
				return fmt.Errorf("failed to decode stream message: %w", err)
			}
			if err := fn(msg); err != nil {
				return err
			}
			continue
		}

		// Comments and fields other than data carry nothing the backend uses.
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		data = append(data, strings.TrimPrefix(value, " "))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return nil
}
