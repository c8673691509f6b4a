package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// DefaultRevokeURL is Google's token revocation endpoint.
const DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// Provider issues and revokes calendar access tokens. Each RequestToken call
// returns its own result; nothing is shared between concurrent requests.
type Provider interface {
	// RequestToken obtains a fresh token. interactive permits a consent
	// prompt; otherwise the provider must answer without user interaction
	// and fails with ErrSilentRefreshDenied when it cannot. current is the
	// token being renewed, or nil.
	RequestToken(ctx context.Context, interactive bool, current *oauth2.Token) (*oauth2.Token, error)
	// Revoke invalidates token at the provider.
	Revoke(ctx context.Context, token *oauth2.Token) error
}

// GoogleProvider obtains tokens from Google: interactive requests run the
// loopback consent flow, silent requests use the refresh token.
type GoogleProvider struct {
	config *oauth2.Config

	// RevokeURL defaults to DefaultRevokeURL.
	RevokeURL string
	// HTTPClient is used for revocation and passed to token exchanges.
	HTTPClient *http.Client
	// ConsentTimeout bounds how long the consent flow waits for the browser.
	ConsentTimeout time.Duration
	// ShowAuthURL presents the consent URL to the user.
	ShowAuthURL func(authURL, redirectURL string)
}

// NewGoogleProvider creates a provider for the given OAuth client.
func NewGoogleProvider(config *oauth2.Config) *GoogleProvider {
	return &GoogleProvider{
		config:         config,
		RevokeURL:      DefaultRevokeURL,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		ConsentTimeout: 5 * time.Minute,
		ShowAuthURL:    printAuthURL,
	}
}

func printAuthURL(authURL, redirectURL string) {
	fmt.Printf("Starting local server on %s\n", redirectURL)
	if redirectURL != "http://127.0.0.1:8080" {
		fmt.Printf("Note: Port 8080 was unavailable. Make sure to add %s to your authorized redirect URIs in Google Cloud Console.\n", redirectURL)
	}
	fmt.Println("\nPlease visit the following URL to authorize the application:")
	fmt.Println(authURL)
	fmt.Println("\nWaiting for authorization...")
}

// RequestToken implements Provider.
func (p *GoogleProvider) RequestToken(ctx context.Context, interactive bool, current *oauth2.Token) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.HTTPClient)
	if !interactive {
		return p.refresh(ctx, current)
	}
	return p.consent(ctx)
}

// refresh renews current without user interaction.
func (p *GoogleProvider) refresh(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error) {
	if current == nil || current.RefreshToken == "" {
		return nil, ErrSilentRefreshDenied
	}

	token, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: %v", ErrSilentRefreshDenied, err)
		}
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = current.RefreshToken
	}
	return token, nil
}

// consent runs the interactive authorization code flow against a loopback
// redirect. The OAuth config is copied so concurrent requests never share a
// redirect URL.
func (p *GoogleProvider) consent(ctx context.Context) (*oauth2.Token, error) {
	state := uuid.NewString()

	redirectURL, codeChan, errorChan, err := startLocalServer(state)
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}

	config := *p.config
	config.RedirectURL = redirectURL

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	p.ShowAuthURL(authURL, redirectURL)

	var code string
	select {
	case code = <-codeChan:
	case err := <-errorChan:
		return nil, fmt.Errorf("%w: failed to receive authorization code: %v", ErrProviderRejected, err)
	case <-time.After(p.ConsentTimeout):
		return nil, fmt.Errorf("authorization timeout: no response received within %s", p.ConsentTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	fmt.Println("Authorization successful!")
	return token, nil
}

// Revoke implements Provider. The refresh token is revoked when present,
// which also invalidates its access tokens.
func (p *GoogleProvider) Revoke(ctx context.Context, token *oauth2.Token) error {
	value := token.RefreshToken
	if value == "" {
		value = token.AccessToken
	}
	if value == "" {
		return nil
	}

	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to revoke token: HTTP %d", resp.StatusCode)
	}
	return nil
}

// startLocalServer starts a local HTTP server to receive the OAuth callback.
// Returns the redirect URL, a channel for the authorization code, and a channel for errors.
// Uses port 8080 by default, or a random port if 8080 is unavailable.
func startLocalServer(state string) (string, <-chan string, <-chan error, error) {
	// Try port 8080 first, fall back to random port if unavailable
	listener, err := net.Listen("tcp", "127.0.0.1:8080")
	if err != nil {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to start local server: %w", err)
		}
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	server := &http.Server{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  10 * time.Second,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch {
		case query.Get("state") != state:
			fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>State mismatch.</p></body></html>")
			sendErr(errorChan, fmt.Errorf("state mismatch in authorization callback"))
		case query.Get("code") != "":
			fmt.Fprintf(w, "<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>")
			select {
			case codeChan <- query.Get("code"):
			default:
			}
		case query.Get("error") != "":
			errMsg := query.Get("error")
			fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>Error: %s</p></body></html>", errMsg)
			sendErr(errorChan, fmt.Errorf("authorization error: %s", errMsg))
		default:
			fmt.Fprintf(w, "<html><body><h1>No authorization code received</h1></body></html>")
			sendErr(errorChan, fmt.Errorf("no authorization code received"))
		}
		go func() {
			time.Sleep(1 * time.Second)
			server.Shutdown(context.Background())
		}()
	})
	server.Handler = mux

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			sendErr(errorChan, fmt.Errorf("server error: %w", err))
		}
	}()

	return redirectURL, codeChan, errorChan, nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
