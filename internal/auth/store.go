package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/beekhof/event-sync/internal/kvstore"
)

// Storage keys of the persisted token pair.
const (
	TokenKey       = "google_calendar_token"
	TokenExpiryKey = "google_calendar_token_expiry"
)

// TokenStore persists a token as two entries: the serialized token and its
// absolute expiry in epoch milliseconds. Both are written and cleared
// together; a lone entry reads as no token.
type TokenStore struct {
	kv kvstore.Store
}

// NewTokenStore creates a TokenStore over kv.
func NewTokenStore(kv kvstore.Store) *TokenStore {
	return &TokenStore{kv: kv}
}

// SaveToken writes token and its expiry.
func (store *TokenStore) SaveToken(token *oauth2.Token) error {
	if token.Expiry.IsZero() {
		return fmt.Errorf("failed to save token: token has no expiry")
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := store.kv.SetMany(map[string]string{
		TokenKey:       string(data),
		TokenExpiryKey: strconv.FormatInt(token.Expiry.UnixMilli(), 10),
	}); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// LoadToken reads the persisted token. Returns nil, nil when either entry
// is missing. The expiry entry is authoritative for Token.Expiry.
func (store *TokenStore) LoadToken() (*oauth2.Token, error) {
	data, hasToken, err := store.kv.Get(TokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	expiry, hasExpiry, err := store.kv.Get(TokenExpiryKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read token expiry: %w", err)
	}
	if !hasToken || !hasExpiry {
		return nil, nil
	}

	millis, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token expiry: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	token.Expiry = time.UnixMilli(millis)

	return &token, nil
}

// Clear removes both entries.
func (store *TokenStore) Clear() error {
	if err := store.kv.Delete(TokenKey, TokenExpiryKey); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
