package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
)

// fakeClock fires timers only when Advance moves past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves the clock forward and runs the timers that were due at the
// new time. Timers armed by those callbacks wait for the next Advance.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Pending returns the deadlines of timers that have neither fired nor been
// stopped.
func (c *fakeClock) Pending() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pending []time.Time
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			pending = append(pending, t.at)
		}
	}
	return pending
}

type tokenRequest struct {
	interactive bool
	current     *oauth2.Token
}

// fakeProvider answers token requests from a queue of responses.
type fakeProvider struct {
	mu        sync.Mutex
	responses []func() (*oauth2.Token, error)
	requests  []tokenRequest
	revoked   []*oauth2.Token
	revokeErr error
}

func (p *fakeProvider) respond(token *oauth2.Token, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, func() (*oauth2.Token, error) { return token, err })
}

func (p *fakeProvider) RequestToken(ctx context.Context, interactive bool, current *oauth2.Token) (*oauth2.Token, error) {
	p.mu.Lock()
	p.requests = append(p.requests, tokenRequest{interactive: interactive, current: current})
	if len(p.responses) == 0 {
		p.mu.Unlock()
		return nil, errors.New("no response queued")
	}
	next := p.responses[0]
	p.responses = p.responses[1:]
	p.mu.Unlock()
	return next()
}

func (p *fakeProvider) respondWith(f func() (*oauth2.Token, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, f)
}

func (p *fakeProvider) Revoke(ctx context.Context, token *oauth2.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, token)
	return p.revokeErr
}

func (p *fakeProvider) Requests() []tokenRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tokenRequest(nil), p.requests...)
}

// memKV is an in-memory kvstore.Store.
type memKV struct {
	mu      sync.Mutex
	entries map[string]string
	setErr  error
}

func newMemKV() *memKV {
	return &memKV{entries: make(map[string]string)}
}

func (m *memKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memKV) SetMany(entries map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	for k, v := range entries {
		m.entries[k] = v
	}
	return nil
}

func (m *memKV) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *memKV) Close() error { return nil }

func (m *memKV) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// recordingNotifier collects notices.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) Notify(level NoticeLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, string(level)+": "+message)
}

func (n *recordingNotifier) Notices() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notices...)
}

// fakeCalendar records inserted events.
type fakeCalendar struct {
	mu        sync.Mutex
	inserted  []*gcal.Event
	calendars []string
	entries   []*gcal.CalendarListEntry
	err       error
}

func (c *fakeCalendar) ListCalendars(ctx context.Context) ([]*gcal.CalendarListEntry, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.entries, nil
}

func (c *fakeCalendar) InsertEvent(ctx context.Context, calendarID string, event *gcal.Event) (*gcal.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.inserted = append(c.inserted, event)
	c.calendars = append(c.calendars, calendarID)
	created := *event
	created.Id = "created-1"
	return &created, nil
}
