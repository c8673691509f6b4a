package auth

import "errors"

var (
	// ErrNotConnected is returned by calendar operations while the session
	// has no token.
	ErrNotConnected = errors.New("not connected to Google Calendar")

	// ErrSilentRefreshDenied means the provider would only issue a token
	// after user interaction.
	ErrSilentRefreshDenied = errors.New("silent token refresh denied: user interaction required")

	// ErrProviderRejected wraps authorization failures reported by the
	// provider (denied consent, revoked or invalid credentials).
	ErrProviderRejected = errors.New("calendar provider rejected the request")

	// ErrTokenExpired means the provider issued a token that had already
	// expired.
	ErrTokenExpired = errors.New("provider issued an expired token")

	// ErrConnectCancelled is returned by Connect when Disconnect ran while
	// the token request was in flight.
	ErrConnectCancelled = errors.New("disconnected while connecting")
)
