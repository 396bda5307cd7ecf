// Package keycloak is an identity provider backed by a Keycloak realm.
//
// Sign-in uses the resource owner password grant of a public client, so the
// client must have Direct Access Grants enabled. Account management goes
// through the admin REST API with a service-account client that holds the
// realm-management manage-users role.
package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"account_gateway/internal/identity"
	"account_gateway/platform/config"
	"account_gateway/platform/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultHTTPTimeout   = 10 * time.Second
	defaultRefreshLeeway = 30 * time.Second
	defaultRetryDelay    = 5 * time.Second
	minPasswordLength    = 6
)

// Option configures a Realm.
type Option func(*Realm)

// WithHTTPClient sets the client used for discovery, token and admin calls.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Realm) { r.http = c }
}

// WithRefreshLeeway sets how long before expiry the watcher refreshes tokens.
func WithRefreshLeeway(d time.Duration) Option {
	return func(r *Realm) { r.refreshLeeway = d }
}

// WithRetryDelay sets the wait after a refresh that failed for a transient reason.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Realm) { r.retryDelay = d }
}

// Realm holds the process-wide Keycloak wiring shared by every Client.
type Realm struct {
	issuer       string
	adminBase    string
	logoutURL    string
	clientID     string
	clientSecret string

	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	admin    *http.Client
	http     *http.Client
	log      *logger.Logger

	refreshLeeway time.Duration
	retryDelay    time.Duration
}

// NewRealm discovers the realm's endpoints and prepares the admin client.
func NewRealm(ctx context.Context, cfg config.KeycloakConfig, log *logger.Logger, opts ...Option) (*Realm, error) {
	if log == nil {
		log = logger.Discard()
	}
	r := &Realm{
		issuer:        strings.TrimSuffix(cfg.GetKeycloakIssuer(), "/"),
		clientID:      cfg.GetKeycloakClientID(),
		clientSecret:  cfg.GetKeycloakClientSecret(),
		http:          &http.Client{Timeout: defaultHTTPTimeout},
		log:           log,
		refreshLeeway: defaultRefreshLeeway,
		retryDelay:    defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(r)
	}

	adminBase, err := adminBaseURL(r.issuer)
	if err != nil {
		return nil, err
	}
	r.adminBase = adminBase

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, r.http), r.issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init keycloak oidc provider: %w", err)
	}
	r.verifier = provider.Verifier(&oidc.Config{ClientID: r.clientID})

	var meta struct {
		EndSession string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("keycloak discovery claims: %w", err)
	}
	r.logoutURL = meta.EndSession
	if r.logoutURL == "" {
		r.logoutURL = r.issuer + "/protocol/openid-connect/logout"
	}

	r.oauth = &oauth2.Config{
		ClientID:     r.clientID,
		ClientSecret: r.clientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}

	adminCfg := clientcredentials.Config{
		ClientID:     cfg.GetKeycloakAdminClientID(),
		ClientSecret: cfg.GetKeycloakAdminClientSecret(),
		TokenURL:     provider.Endpoint().TokenURL,
	}
	// The admin client outlives ctx; token fetches must not inherit its cancellation.
	r.admin = adminCfg.Client(r.httpContext(context.WithoutCancel(ctx)))

	return r, nil
}

// NewClient returns a provider for one client session.
func (r *Realm) NewClient() *Client {
	return newClient(r)
}

func (r *Realm) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, r.http)
}

func (r *Realm) passwordGrant(ctx context.Context, email, password string) (*oauth2.Token, error) {
	tok, err := r.oauth.PasswordCredentialsToken(r.httpContext(ctx), email, password)
	if err != nil {
		if isInvalidGrant(err) {
			return nil, fmt.Errorf("%w: %v", identity.ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("keycloak password grant: %w", err)
	}
	return tok, nil
}

func (r *Realm) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := r.oauth.TokenSource(r.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

type idClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// identityFromToken verifies the id_token carried by tok.
func (r *Realm) identityFromToken(ctx context.Context, tok *oauth2.Token) (*identity.Identity, error) {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, errors.New("keycloak did not return id_token")
	}
	idToken, err := r.verifier.Verify(oidc.ClientContext(ctx, r.http), raw)
	if err != nil {
		return nil, fmt.Errorf("keycloak id_token verification failed: %w", err)
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("keycloak id_token claims parse failed: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("keycloak id_token missing subject")
	}
	return &identity.Identity{
		ID:            claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// logout ends the Keycloak session that issued refreshToken.
func (r *Realm) logout(ctx context.Context, refreshToken string) error {
	form := url.Values{"client_id": {r.clientID}, "refresh_token": {refreshToken}}
	if r.clientSecret != "" {
		form.Set("client_secret", r.clientSecret)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.logoutURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build logout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("keycloak logout: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("keycloak logout: status %d", resp.StatusCode)
	}
	return nil
}

func isInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.ErrorCode == "invalid_grant"
}

// adminBaseURL turns https://host/realms/name into https://host/admin/realms/name.
func adminBaseURL(issuer string) (string, error) {
	idx := strings.LastIndex(issuer, "/realms/")
	if idx < 0 || idx+len("/realms/") == len(issuer) {
		return "", fmt.Errorf("keycloak issuer %q is not a realm url", issuer)
	}
	return issuer[:idx] + "/admin" + issuer[idx:], nil
}
