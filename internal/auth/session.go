// Package auth manages the Google Calendar session: obtaining tokens,
// persisting them, renewing them silently before they expire, and
// revoking them on disconnect.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/beekhof/event-sync/internal/calendar"
)

// Defaults for Options.
const (
	DefaultRefreshLead    = 5 * time.Minute
	DefaultTokenTTL       = 3600 * time.Second
	DefaultRefreshTimeout = 30 * time.Second
	DefaultCalendarID     = "primary"
)

// State is the connection state of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// NoticeLevel classifies a user-visible notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
)

// Notifier surfaces session notices to the user.
type Notifier interface {
	Notify(level NoticeLevel, message string)
}

// LogNotifier writes notices to the standard logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(level NoticeLevel, message string) {
	log.Printf("[%s] %s", level, message)
}

// ClientFactory builds a calendar client authorized with token.
type ClientFactory func(ctx context.Context, token *oauth2.Token) (calendar.CalendarClient, error)

// NewGoogleClient is the default ClientFactory.
func NewGoogleClient(ctx context.Context, token *oauth2.Token) (calendar.CalendarClient, error) {
	return calendar.NewClient(ctx, oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)))
}

// Options configure a Session. Zero values select the defaults.
type Options struct {
	RefreshLead    time.Duration
	RefreshTimeout time.Duration
	CalendarID     string
	Clock          Clock
	Notifier       Notifier
	NewClient      ClientFactory
}

// Session owns the calendar token for one process. At most one silent
// refresh is pending at any time.
type Session struct {
	provider Provider
	store    *TokenStore

	lead           time.Duration
	refreshTimeout time.Duration
	calendarID     string
	clock          Clock
	notifier       Notifier
	newClient      ClientFactory

	mu    sync.Mutex
	state State
	token *oauth2.Token
	timer Timer
	// generation invalidates refresh callbacks armed for an older token.
	generation uint64
	// disconnects counts Disconnect calls so an in-flight Connect can tell
	// it was overtaken.
	disconnects uint64
	// discarded is the expired token Restore dropped. Its refresh token
	// stays valid at the provider until revoked.
	discarded *oauth2.Token
}

// NewSession creates a disconnected session. Call Restore to pick up a
// persisted token.
func NewSession(provider Provider, store *TokenStore, opts Options) *Session {
	s := &Session{
		provider:       provider,
		store:          store,
		lead:           opts.RefreshLead,
		refreshTimeout: opts.RefreshTimeout,
		calendarID:     opts.CalendarID,
		clock:          opts.Clock,
		notifier:       opts.Notifier,
		newClient:      opts.NewClient,
	}
	if s.lead <= 0 {
		s.lead = DefaultRefreshLead
	}
	if s.refreshTimeout <= 0 {
		s.refreshTimeout = DefaultRefreshTimeout
	}
	if s.calendarID == "" {
		s.calendarID = DefaultCalendarID
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{}
	}
	if s.newClient == nil {
		s.newClient = NewGoogleClient
	}
	return s
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether a token is installed.
func (s *Session) IsConnected() bool {
	return s.State() == Connected
}

// Token returns a copy of the active token, or nil.
func (s *Session) Token() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil
	}
	token := *s.token
	return &token
}

// Restore installs the persisted token if it has not expired. Missing,
// orphaned, unreadable and expired entries are purged.
func (s *Session) Restore() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.store.LoadToken()
	if err != nil {
		log.Printf("Warning: failed to restore token: %v", err)
		s.purgeLocked()
		return s.state
	}
	if token == nil {
		log.Println("No saved token found")
		s.purgeLocked()
		return s.state
	}
	if !token.Expiry.After(s.clock.Now()) {
		log.Println("Saved token expired, clearing")
		s.purgeLocked()
		if token.RefreshToken != "" {
			s.discarded = token
		}
		return s.state
	}

	s.token = token
	s.state = Connected
	s.scheduleLocked(token.Expiry)
	log.Printf("Token restored, expires in %d minutes", int(token.Expiry.Sub(s.clock.Now()).Minutes()))
	return s.state
}

// Connect requests a new token and installs it. interactive permits a
// consent prompt; a silent request fails with ErrSilentRefreshDenied when
// the provider needs the user.
func (s *Session) Connect(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	s.mu.Lock()
	prior := s.token
	disconnects := s.disconnects
	if s.state == Disconnected {
		s.state = Connecting
	}
	s.mu.Unlock()

	token, err := s.provider.RequestToken(ctx, interactive, prior)

	s.mu.Lock()
	if disconnects != s.disconnects {
		s.mu.Unlock()
		if err == nil && token != nil {
			if revokeErr := s.provider.Revoke(ctx, token); revokeErr != nil {
				log.Printf("Warning: failed to revoke token: %v", revokeErr)
			}
		}
		return nil, fmt.Errorf("failed to connect: %w", ErrConnectCancelled)
	}
	defer s.mu.Unlock()
	if err == nil {
		err = s.checkIssuedLocked(token)
	}
	if err != nil {
		if s.state == Connecting {
			s.state = Disconnected
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	s.installLocked(token)
	installed := *s.token
	return &installed, nil
}

// Disconnect revokes the token, purges storage and stops any pending
// refresh. Without an active token it revokes the persisted one, or the
// expired one Restore dropped. Revocation is best-effort.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.disconnects++
	token := s.token
	if token == nil {
		persisted, loadErr := s.store.LoadToken()
		if loadErr != nil {
			log.Printf("Warning: failed to read stored token: %v", loadErr)
		}
		token = persisted
	}
	if token == nil {
		token = s.discarded
	}
	err := s.purgeLocked()
	s.mu.Unlock()

	if token != nil {
		if revokeErr := s.provider.Revoke(ctx, token); revokeErr != nil {
			log.Printf("Warning: failed to revoke token: %v", revokeErr)
		}
	}

	s.notifier.Notify(NoticeInfo, "Disconnected from Google Calendar")
	return err
}

// Close stops the pending refresh without touching storage.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.generation++
}

// ListCalendars returns the calendars of the connected account.
func (s *Session) ListCalendars(ctx context.Context) ([]*gcal.CalendarListEntry, error) {
	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := client.ListCalendars(ctx)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	return entries, nil
}

// AddEvent validates draft and inserts it into the session's calendar.
func (s *Session) AddEvent(ctx context.Context, draft calendar.Draft) (*gcal.Event, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	created, err := client.InsertEvent(ctx, s.calendarID, draft.ToEvent())
	if err != nil {
		return nil, classifyProviderError(err)
	}
	return created, nil
}

func (s *Session) client(ctx context.Context) (calendar.CalendarClient, error) {
	token := s.Token()
	if token == nil || !s.IsConnected() {
		return nil, ErrNotConnected
	}
	client, err := s.newClient(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}
	return client, nil
}

// classifyProviderError marks authorization failures as ErrProviderRejected.
func classifyProviderError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %v", ErrProviderRejected, err)
	}
	return err
}

// checkIssuedLocked rejects a token the provider issued already expired.
func (s *Session) checkIssuedLocked(token *oauth2.Token) error {
	if token == nil {
		return errors.New("provider returned no token")
	}
	if !token.Expiry.IsZero() && !token.Expiry.After(s.clock.Now()) {
		return fmt.Errorf("%w: expired at %s", ErrTokenExpired, token.Expiry.Format(time.RFC3339))
	}
	return nil
}

// installLocked makes token active, persists it and re-arms the refresh.
func (s *Session) installLocked(token *oauth2.Token) {
	if token.Expiry.IsZero() {
		token.Expiry = s.clock.Now().Add(DefaultTokenTTL)
	}
	if err := s.store.SaveToken(token); err != nil {
		log.Printf("Warning: failed to save token: %v", err)
	}
	s.token = token
	s.discarded = nil
	s.state = Connected
	s.scheduleLocked(token.Expiry)
}

// scheduleLocked replaces any pending refresh with one that fires lead
// before expiry. A token already inside the lead window is refreshed at the
// midpoint of its remaining lifetime.
func (s *Session) scheduleLocked(expiry time.Time) {
	s.stopTimerLocked()
	s.generation++
	generation := s.generation

	remaining := expiry.Sub(s.clock.Now())
	delay := remaining - s.lead
	if remaining <= s.lead {
		delay = max(remaining/2, 0)
	}

	s.timer = s.clock.AfterFunc(delay, func() { s.refresh(generation) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// purgeLocked drops the token, cancels the refresh and clears storage.
func (s *Session) purgeLocked() error {
	s.stopTimerLocked()
	s.generation++
	s.token = nil
	s.discarded = nil
	s.state = Disconnected
	if err := s.store.Clear(); err != nil {
		log.Printf("Warning: %v", err)
		return err
	}
	return nil
}

// refresh performs one silent renewal. Failures end the session; they are
// not retried.
func (s *Session) refresh(generation uint64) {
	s.mu.Lock()
	if generation != s.generation || s.state != Connected {
		s.mu.Unlock()
		return
	}
	prior := s.token
	s.timer = nil
	s.mu.Unlock()

	log.Println("Token expiring soon, attempting silent refresh...")
	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()
	token, err := s.provider.RequestToken(ctx, false, prior)

	s.mu.Lock()
	if generation != s.generation {
		// Connected, disconnected or closed while the request was in flight.
		s.mu.Unlock()
		return
	}
	if err == nil {
		err = s.checkIssuedLocked(token)
	}
	if err != nil {
		log.Printf("Warning: silent refresh failed: %v", err)
		s.purgeLocked()
		s.mu.Unlock()
		s.notifier.Notify(NoticeWarning, "Your session expired. Please reconnect to Google Calendar.")
		return
	}
	s.installLocked(token)
	s.mu.Unlock()

	s.notifier.Notify(NoticeSuccess, "Session refreshed successfully!")
}
