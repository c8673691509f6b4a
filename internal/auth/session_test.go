package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/beekhof/event-sync/internal/calendar"
)

var epoch = time.Date(2025, 12, 1, 16, 0, 0, 0, time.UTC)

type sessionHarness struct {
	session  *Session
	clock    *fakeClock
	provider *fakeProvider
	kv       *memKV
	store    *TokenStore
	notifier *recordingNotifier
	cal      *fakeCalendar
}

func newHarness(t *testing.T) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		clock:    newFakeClock(epoch),
		provider: &fakeProvider{},
		kv:       newMemKV(),
		notifier: &recordingNotifier{},
		cal:      &fakeCalendar{},
	}
	h.store = NewTokenStore(h.kv)
	h.session = NewSession(h.provider, h.store, Options{
		Clock:    h.clock,
		Notifier: h.notifier,
		NewClient: func(ctx context.Context, token *oauth2.Token) (calendar.CalendarClient, error) {
			return h.cal, nil
		},
	})
	t.Cleanup(h.session.Close)
	return h
}

func tokenExpiringIn(access string, d time.Duration) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: "refresh-" + access,
		Expiry:       epoch.Add(d),
	}
}

func TestSession_StartsDisconnected(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, Disconnected, h.session.State())
	assert.False(t, h.session.IsConnected())
	assert.Nil(t, h.session.Token())
}

func TestSession_ConnectPersistsAndSchedulesRefresh(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)

	token, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "a1", token.AccessToken)
	assert.Equal(t, Connected, h.session.State())

	require.Len(t, h.provider.Requests(), 1)
	assert.True(t, h.provider.Requests()[0].interactive)

	stored, err := h.store.LoadToken()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "a1", stored.AccessToken)
	assert.True(t, stored.Expiry.Equal(epoch.Add(time.Hour)))

	assert.Equal(t, []time.Time{epoch.Add(55 * time.Minute)}, h.clock.Pending())
}

func TestSession_ConnectWithoutExpiryAssumesOneHour(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}, nil)

	token, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, token.Expiry.Equal(epoch.Add(DefaultTokenTTL)))
	assert.Equal(t, []time.Time{epoch.Add(DefaultTokenTTL - DefaultRefreshLead)}, h.clock.Pending())
}

func TestSession_ConnectFailureLeavesDisconnected(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(nil, ErrProviderRejected)

	_, err := h.session.Connect(context.Background(), true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderRejected))
	assert.Equal(t, Disconnected, h.session.State())
	assert.Equal(t, 0, h.kv.Len())
	assert.Empty(t, h.clock.Pending())
}

func TestSession_ConnectFailureWhileConnectedKeepsToken(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)
	_, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)

	h.provider.respond(nil, errors.New("popup closed"))
	_, err = h.session.Connect(context.Background(), true)
	require.Error(t, err)

	assert.Equal(t, Connected, h.session.State())
	assert.Equal(t, "a1", h.session.Token().AccessToken)
	assert.Len(t, h.clock.Pending(), 1)
}

func TestSession_ConnectSaveFailureStillConnects(t *testing.T) {
	h := newHarness(t)
	h.kv.setErr = errors.New("disk full")
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)

	_, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, h.session.IsConnected())
}

func TestSession_SilentRefreshInstallsNewToken(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)
	_, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)

	h.provider.respond(tokenExpiringIn("a2", 2*time.Hour), nil)
	h.clock.Advance(55 * time.Minute)

	requests := h.provider.Requests()
	require.Len(t, requests, 2)
	assert.False(t, requests[1].interactive)
	require.NotNil(t, requests[1].current)
	assert.Equal(t, "a1", requests[1].current.AccessToken)

	assert.Equal(t, Connected, h.session.State())
	assert.Equal(t, "a2", h.session.Token().AccessToken)

	stored, err := h.store.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "a2", stored.AccessToken)

	assert.Equal(t, []time.Time{epoch.Add(2*time.Hour - DefaultRefreshLead)}, h.clock.Pending())
	assert.Equal(t, []string{"success: Session refreshed successfully!"}, h.notifier.Notices())
}

func TestSession_SilentRefreshFailureDisconnects(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)
	_, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)

	h.provider.respond(nil, ErrSilentRefreshDenied)
	h.clock.Advance(55 * time.Minute)

	assert.Equal(t, Disconnected, h.session.State())
	assert.Nil(t, h.session.Token())
	assert.Equal(t, 0, h.kv.Len())
	assert.Empty(t, h.clock.Pending())
	assert.Equal(t,
		[]string{"warning: Your session expired. Please reconnect to Google Calendar."},
		h.notifier.Notices())

	// No retry is scheduled.
	h.clock.Advance(24 * time.Hour)
	assert.Len(t, h.provider.Requests(), 2)
}

func TestSession_AtMostOneRefreshPending(t *testing.T) {
	h := newHarness(t)
	for _, access := range []string{"a1", "a2", "a3"} {
		h.provider.respond(tokenExpiringIn(access, time.Hour), nil)
		_, err := h.session.Connect(context.Background(), true)
		require.NoError(t, err)
	}
	assert.Len(t, h.clock.Pending(), 1)

	h.provider.respond(tokenExpiringIn("a4", 2*time.Hour), nil)
	h.clock.Advance(55 * time.Minute)

	// Only the surviving timer triggered a silent request.
	assert.Len(t, h.provider.Requests(), 4)
	assert.Len(t, h.clock.Pending(), 1)
}

func TestSession_DisconnectDuringRefreshDiscardsResult(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)
	_, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)

	h.provider.respondWith(func() (*oauth2.Token, error) {
		require.NoError(t, h.session.Disconnect(context.Background()))
		return tokenExpiringIn("late", 2*time.Hour), nil
	})
	h.clock.Advance(55 * time.Minute)

	assert.Equal(t, Disconnected, h.session.State())
	assert.Equal(t, 0, h.kv.Len())
	assert.Empty(t, h.clock.Pending())
	assert.NotContains(t, h.notifier.Notices(), "success: Session refreshed successfully!")
}

func TestSession_ConnectOvertakenByDisconnectIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.provider.respondWith(func() (*oauth2.Token, error) {
		require.NoError(t, h.session.Disconnect(context.Background()))
		return tokenExpiringIn("late", time.Hour), nil
	})

	_, err := h.session.Connect(context.Background(), true)
	assert.ErrorIs(t, err, ErrConnectCancelled)

	assert.Equal(t, Disconnected, h.session.State())
	assert.Nil(t, h.session.Token())
	assert.Equal(t, 0, h.kv.Len())
	assert.Empty(t, h.clock.Pending())
	require.Len(t, h.provider.revoked, 1)
	assert.Equal(t, "late", h.provider.revoked[0].AccessToken)
}

func TestSession_ConnectRejectsExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(tokenExpiringIn("stale", -time.Minute), nil)

	_, err := h.session.Connect(context.Background(), true)
	assert.ErrorIs(t, err, ErrTokenExpired)

	assert.Equal(t, Disconnected, h.session.State())
	assert.Equal(t, 0, h.kv.Len())
	assert.Empty(t, h.clock.Pending())
}

func TestSession_SilentRefreshExpiredTokenDisconnects(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)
	_, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)

	// Issued already expired relative to the refresh instant.
	h.provider.respond(tokenExpiringIn("stale", 50*time.Minute), nil)
	h.clock.Advance(55 * time.Minute)

	assert.Equal(t, Disconnected, h.session.State())
	assert.Equal(t, 0, h.kv.Len())
	assert.Empty(t, h.clock.Pending())
	assert.Len(t, h.provider.Requests(), 2)
	assert.Equal(t,
		[]string{"warning: Your session expired. Please reconnect to Google Calendar."},
		h.notifier.Notices())
}

func TestSession_RestoreValidToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SaveToken(tokenExpiringIn("saved", time.Hour)))

	assert.Equal(t, Connected, h.session.Restore())
	assert.Equal(t, "saved", h.session.Token().AccessToken)
	assert.Equal(t, []time.Time{epoch.Add(55 * time.Minute)}, h.clock.Pending())
	assert.Empty(t, h.provider.Requests())
}

func TestSession_RestoreExpiredTokenPurges(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SaveToken(tokenExpiringIn("old", -time.Minute)))

	assert.Equal(t, Disconnected, h.session.Restore())
	assert.Equal(t, 0, h.kv.Len())
	assert.Empty(t, h.clock.Pending())
}

func TestSession_RestoreOrphanedEntryPurges(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.kv.SetMany(map[string]string{TokenKey: `{"access_token":"x"}`}))

	assert.Equal(t, Disconnected, h.session.Restore())
	assert.Equal(t, 0, h.kv.Len())
}

func TestSession_RestoreCorruptEntryPurges(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.kv.SetMany(map[string]string{
		TokenKey:       "not json",
		TokenExpiryKey: "1764612000000",
	}))

	assert.Equal(t, Disconnected, h.session.Restore())
	assert.Equal(t, 0, h.kv.Len())
}

func TestSession_RestoreInsideLeadRefreshesAtHalfRemaining(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SaveToken(tokenExpiringIn("short", 2*time.Minute)))

	assert.Equal(t, Connected, h.session.Restore())
	assert.Equal(t, []time.Time{epoch.Add(time.Minute)}, h.clock.Pending())

	h.provider.respond(tokenExpiringIn("long", time.Hour), nil)
	h.clock.Advance(time.Minute)
	assert.Equal(t, "long", h.session.Token().AccessToken)
}

func TestSession_DisconnectRevokesAndPurges(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)
	_, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)

	require.NoError(t, h.session.Disconnect(context.Background()))

	assert.Equal(t, Disconnected, h.session.State())
	assert.Equal(t, 0, h.kv.Len())
	assert.Empty(t, h.clock.Pending())
	require.Len(t, h.provider.revoked, 1)
	assert.Equal(t, "a1", h.provider.revoked[0].AccessToken)
	assert.Equal(t, []string{"info: Disconnected from Google Calendar"}, h.notifier.Notices())
}

func TestSession_DisconnectRevokeFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.provider.revokeErr = errors.New("network down")
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)
	_, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)

	require.NoError(t, h.session.Disconnect(context.Background()))
	assert.Equal(t, Disconnected, h.session.State())
	assert.Equal(t, 0, h.kv.Len())
}

func TestSession_DisconnectAfterRestoreRevokesExpiredToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SaveToken(tokenExpiringIn("old", -time.Minute)))

	assert.Equal(t, Disconnected, h.session.Restore())
	require.NoError(t, h.session.Disconnect(context.Background()))

	require.Len(t, h.provider.revoked, 1)
	assert.Equal(t, "refresh-old", h.provider.revoked[0].RefreshToken)
	assert.Equal(t, 0, h.kv.Len())
	assert.Equal(t, []string{"info: Disconnected from Google Calendar"}, h.notifier.Notices())
}

func TestSession_DisconnectRevokesPersistedToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SaveToken(tokenExpiringIn("old", -time.Minute)))

	require.NoError(t, h.session.Disconnect(context.Background()))

	require.Len(t, h.provider.revoked, 1)
	assert.Equal(t, "refresh-old", h.provider.revoked[0].RefreshToken)
	assert.Equal(t, 0, h.kv.Len())
}

func TestSession_DisconnectWithoutTokenSkipsRevoke(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.Disconnect(context.Background()))
	assert.Empty(t, h.provider.revoked)
}

func validDraft() calendar.Draft {
	return calendar.Draft{
		Summary: "Concert",
		Start:   calendar.DateTime{DateTime: "2025-12-02T19:00:00-06:00", TimeZone: "America/Chicago"},
		End:     calendar.DateTime{DateTime: "2025-12-02T21:00:00-06:00", TimeZone: "America/Chicago"},
	}
}

func TestSession_AddEventRequiresConnection(t *testing.T) {
	h := newHarness(t)
	_, err := h.session.AddEvent(context.Background(), validDraft())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, h.cal.inserted)
}

func TestSession_AddEventValidatesBeforeInsert(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)
	_, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)

	draft := validDraft()
	draft.Start.DateTime = ""
	_, err = h.session.AddEvent(context.Background(), draft)

	var verr *calendar.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "start", verr.Field)
	assert.Empty(t, h.cal.inserted)
}

func TestSession_AddEventInsertsIntoConfiguredCalendar(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)
	_, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)

	created, err := h.session.AddEvent(context.Background(), validDraft())
	require.NoError(t, err)
	assert.Equal(t, "created-1", created.Id)
	assert.Equal(t, []string{DefaultCalendarID}, h.cal.calendars)
	assert.Equal(t, "Concert", h.cal.inserted[0].Summary)
}

func TestSession_AddEventUnauthorizedIsProviderRejected(t *testing.T) {
	h := newHarness(t)
	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)
	_, err := h.session.Connect(context.Background(), true)
	require.NoError(t, err)

	h.cal.err = &googleapi.Error{Code: http.StatusUnauthorized, Message: "Invalid Credentials"}
	_, err = h.session.AddEvent(context.Background(), validDraft())
	assert.ErrorIs(t, err, ErrProviderRejected)
}

func TestSession_ListCalendars(t *testing.T) {
	h := newHarness(t)
	h.cal.entries = []*gcal.CalendarListEntry{{Id: "me@illinois.edu", Primary: true}}

	_, err := h.session.ListCalendars(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	h.provider.respond(tokenExpiringIn("a1", time.Hour), nil)
	_, err = h.session.Connect(context.Background(), true)
	require.NoError(t, err)

	entries, err := h.session.ListCalendars(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me@illinois.edu", calendar.PrimaryCalendar(entries).Id)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
}
