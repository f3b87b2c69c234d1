package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cxcli/internal/credentials"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenLifetime is how long a cached access token is reused.
const tokenLifetime = 59 * time.Minute

// AuthenticationError reports a rejected token exchange.
type AuthenticationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to authenticate with Citrix Cloud. Return code: %d %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("failed to authenticate with Citrix Cloud: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// TokenSource exchanges client credentials for access tokens and caches
// them in the credential store.
type TokenSource struct {
	creds     credentials.Credentials
	store     credentials.Store
	config    clientcredentials.Config
	client    *http.Client
	userAgent string
	now       func() time.Time

	token  string
	issued time.Time
}

// NewTokenSource creates a token source for creds. tokenURL is the fully
// resolved token endpoint of the customer.
func NewTokenSource(creds credentials.Credentials, store credentials.Store, tokenURL string, client *http.Client, userAgent string) *TokenSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenSource{
		creds: creds,
		store: store,
		config: clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		client:    client,
		userAgent: userAgent,
		now:       time.Now,
	}
}

func (ts *TokenSource) cacheable() bool {
	return ts.store != nil && !ts.creds.FromEnv
}

// Token returns a valid access token, reusing a cached one for up to
// 59 minutes. Tokens for environment credentials are never cached.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	if ts.token != "" && ts.now().Sub(ts.issued) < tokenLifetime {
		return ts.token, nil
	}
	if ts.cacheable() {
		token, issued, err := credentials.CachedToken(ts.store)
		if err != nil {
			return "", fmt.Errorf("failed to read cached token: %w", err)
		}
		if token != "" && ts.now().Sub(issued) < tokenLifetime {
			ts.token, ts.issued = token, issued
			return token, nil
		}
	}
	token, err := ts.Fresh(ctx)
	if err != nil {
		return "", err
	}
	ts.token, ts.issued = token, ts.now()
	if ts.cacheable() {
		if err := credentials.SaveToken(ts.store, token, ts.issued); err != nil {
			return "", fmt.Errorf("failed to cache token: %w", err)
		}
	}
	return token, nil
}

// Fresh performs a token exchange without consulting or updating the cache.
func (ts *TokenSource) Fresh(ctx context.Context) (string, error) {
	client := &http.Client{
		Transport: userAgentTransport{userAgent: ts.userAgent, base: ts.client.Transport},
		Timeout:   ts.client.Timeout,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	tok, err := ts.config.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			return "", &AuthenticationError{StatusCode: status, Body: string(re.Body), Err: err}
		}
		return "", fmt.Errorf("token request failed: %w", err)
	}
	return tok.AccessToken, nil
}

// WithAuthorization adds the platform authorization header to req.
func (ts *TokenSource) WithAuthorization(ctx context.Context, req *http.Request) error {
	token, err := ts.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "CwsAuth bearer="+token)
	req.Header.Set("Accept", "application/json")
	return nil
}

type userAgentTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.userAgent == "" {
		return base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return base.RoundTrip(r)
}
