// Package memory is an in-process identity provider for local development and
// tests. Accounts live in a Directory; each browser session talks to it
// through its own Client.
package memory

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"account_gateway/internal/email"
	"account_gateway/internal/identity"
	"account_gateway/platform/validator"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	resetTokenType    = "reset"
	resetTokenTTL     = time.Hour
)

type account struct {
	id       string
	email    string
	hash     []byte
	verified bool
}

func (a *account) identity() *identity.Identity {
	return &identity.Identity{ID: a.id, Email: a.email, EmailVerified: a.verified}
}

// Directory holds the accounts shared by all clients.
type Directory struct {
	mu       sync.Mutex
	accounts map[string]*account
	byEmail  map[string]string
	clients  map[*Client]struct{}

	mailer       email.Sender
	resetBaseURL string
	secret       []byte
	cost         int
	now          func() time.Time
	val          *validator.Validator
}

// Option configures a Directory.
type Option func(*Directory)

// WithMailer sends password reset links pointing at baseURL through sender.
func WithMailer(sender email.Sender, baseURL string) Option {
	return func(d *Directory) {
		d.mailer = sender
		d.resetBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTokenSecret sets the HMAC secret for reset tokens.
func WithTokenSecret(secret string) Option {
	return func(d *Directory) { d.secret = []byte(secret) }
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(d *Directory) { d.cost = cost }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// NewDirectory creates an empty account directory.
func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
		clients:  make(map[*Client]struct{}),
		secret:   []byte(uuid.NewString()),
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
		val:      validator.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewClient returns a provider for one client session.
func (d *Directory) NewClient() *Client {
	c := newClient(d)
	d.mu.Lock()
	d.clients[c] = struct{}{}
	d.mu.Unlock()
	return c
}

// ConfirmPasswordReset sets a new password for the account named in a reset
// token previously mailed by SendResetEmail.
func (d *Directory) ConfirmPasswordReset(_ context.Context, rawToken, newPassword string) error {
	accountID, err := d.parseResetToken(rawToken)
	if err != nil {
		return err
	}
	if len(newPassword) < minPasswordLength {
		return identity.ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), d.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	acc, ok := d.accounts[accountID]
	if !ok {
		return identity.ErrNotFound
	}
	acc.hash = hash
	return nil
}

func (d *Directory) detach(c *Client) {
	d.mu.Lock()
	delete(d.clients, c)
	d.mu.Unlock()
}

func (d *Directory) validEmail(addr string) bool {
	return d.val.Var(addr, "required,email") == nil
}

func (d *Directory) create(emailAddr, password string) (*identity.Identity, error) {
	emailAddr = normalizeEmail(emailAddr)
	if !d.validEmail(emailAddr) {
		return nil, identity.ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, identity.ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.byEmail[emailAddr]; taken {
		return nil, identity.ErrEmailInUse
	}
	acc := &account{id: uuid.NewString(), email: emailAddr, hash: hash}
	d.accounts[acc.id] = acc
	d.byEmail[emailAddr] = acc.id
	return acc.identity(), nil
}

func (d *Directory) verify(emailAddr, password string) (*identity.Identity, error) {
	d.mu.Lock()
	acc := d.lookupLocked(normalizeEmail(emailAddr))
	var hash []byte
	if acc != nil {
		hash = acc.hash
	}
	d.mu.Unlock()

	if acc == nil {
		return nil, identity.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return acc.identity(), nil
}

func (d *Directory) lookupLocked(emailAddr string) *account {
	id, ok := d.byEmail[emailAddr]
	if !ok {
		return nil
	}
	return d.accounts[id]
}

func (d *Directory) sendReset(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if !d.validEmail(emailAddr) {
		return identity.ErrInvalidEmail
	}

	d.mu.Lock()
	acc := d.lookupLocked(emailAddr)
	d.mu.Unlock()
	if acc == nil || d.mailer == nil {
		return nil
	}

	token, err := d.mintResetToken(acc.id)
	if err != nil {
		return err
	}
	link := d.resetBaseURL + "/reset-password?token=" + url.QueryEscape(token)
	return d.mailer.SendPasswordResetEmail(ctx, emailAddr, link)
}

func (d *Directory) updateEmail(accountID, newEmail string) (*identity.Identity, error) {
	newEmail = normalizeEmail(newEmail)
	if !d.validEmail(newEmail) {
		return nil, identity.ErrInvalidEmail
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	acc, ok := d.accounts[accountID]
	if !ok {
		return nil, identity.ErrNotFound
	}
	if owner, taken := d.byEmail[newEmail]; taken && owner != accountID {
		return nil, identity.ErrEmailInUse
	}
	delete(d.byEmail, acc.email)
	acc.email = newEmail
	acc.verified = false
	d.byEmail[newEmail] = accountID
	return acc.identity(), nil
}

func (d *Directory) updatePassword(accountID, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return identity.ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), d.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	acc, ok := d.accounts[accountID]
	if !ok {
		return identity.ErrNotFound
	}
	acc.hash = hash
	return nil
}

func (d *Directory) delete(accountID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	acc, ok := d.accounts[accountID]
	if !ok {
		return identity.ErrNotFound
	}
	delete(d.byEmail, acc.email)
	delete(d.accounts, accountID)
	return nil
}

// broadcast publishes next to every client except origin that is signed in
// as accountID.
func (d *Directory) broadcast(origin *Client, accountID string, next *identity.Identity) {
	d.mu.Lock()
	targets := make([]*Client, 0, len(d.clients))
	for c := range d.clients {
		if c != origin {
			targets = append(targets, c)
		}
	}
	d.mu.Unlock()

	for _, c := range targets {
		if cur := c.feed.Current(); cur != nil && cur.ID == accountID {
			c.feed.Publish(next.Clone())
		}
	}
}

type resetClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

func (d *Directory) mintResetToken(accountID string) (string, error) {
	now := d.now()
	claims := resetClaims{
		Type: resetTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(resetTokenTTL)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
}

func (d *Directory) parseResetToken(raw string) (string, error) {
	claims := &resetClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return d.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(d.now))
	if err != nil || !parsed.Valid || claims.Type != resetTokenType || claims.Subject == "" {
		return "", identity.ErrInvalidResetToken
	}
	return claims.Subject, nil
}

func normalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
