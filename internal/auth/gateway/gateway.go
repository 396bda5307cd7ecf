// Package gateway binds browser sessions to session controllers. Each browser
// gets its own controller and identity provider client, found again through a
// signed cookie and closed after a period of inactivity.
package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"account_gateway/internal/auth/repository"
	"account_gateway/internal/auth/session"
	"account_gateway/internal/auth/token"
	"account_gateway/internal/identity"
	"account_gateway/platform/config"
	"account_gateway/platform/httpkit"
	"account_gateway/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	controllerKey = "sessionController"
	cookieTTL     = 24 * time.Hour
	minSweepEvery = time.Second
)

var errClosed = errors.New("gateway closed")

// ProviderFactory returns a fresh provider client for one browser session.
type ProviderFactory func() identity.Provider

type entry struct {
	ctrl     *session.Controller
	provider identity.Provider
	lastSeen time.Time
	// inFlight counts requests using ctrl. Sweep leaves busy entries alone.
	inFlight int
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSessionOptions applies opts to every controller the gateway creates.
func WithSessionOptions(opts ...session.Option) Option {
	return func(g *Gateway) { g.sessionOpts = append(g.sessionOpts, opts...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

type Gateway struct {
	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool

	newProvider ProviderFactory
	records     repository.RecordRepository
	sessionOpts []session.Option
	log         *logger.Logger
	now         func() time.Time

	secret         []byte
	idleTTL        time.Duration
	cookieName     string
	cookieSecure   bool
	cookieSameSite http.SameSite
}

func New(cfg config.GatewayConfig, newProvider ProviderFactory, records repository.RecordRepository, log *logger.Logger, opts ...Option) *Gateway {
	if log == nil {
		log = logger.Discard()
	}
	g := &Gateway{
		sessions:       make(map[string]*entry),
		newProvider:    newProvider,
		records:        records,
		log:            log,
		now:            time.Now,
		secret:         []byte(cfg.GetGatewaySecret()),
		idleTTL:        cfg.GetGatewayIdleTTL(),
		cookieName:     cfg.GetGatewayCookieName(),
		cookieSecure:   cfg.GetGatewayCookieSecure(),
		cookieSameSite: cfg.GetGatewayCookieSameSite(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware resolves the caller's controller, creating a session and cookie
// when the request carries none or an unknown one.
func (g *Gateway) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		e := g.lookup(c)
		if e == nil {
			sid, created, err := g.open()
			if err != nil {
				g.log.WithContext(c.Request.Context()).Error("failed to open session", slog.String("error", err.Error()))
				httpkit.Error(c, http.StatusServiceUnavailable, "session unavailable", nil)
				c.Abort()
				return
			}
			if err := g.setCookie(c, sid); err != nil {
				g.release(sid)
				g.log.WithContext(c.Request.Context()).Error("failed to issue session cookie", slog.String("error", err.Error()))
				httpkit.Error(c, http.StatusInternalServerError, "internal error", nil)
				c.Abort()
				return
			}
			e = created
		}
		defer g.finish(e)

		c.Set(controllerKey, e.ctrl)
		if who := e.ctrl.Current(); who != nil {
			ctx := context.WithValue(c.Request.Context(), logger.UserIDKey, who.ID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// FromContext returns the controller Middleware stored on c.
func FromContext(c *gin.Context) (*session.Controller, bool) {
	v, ok := c.Get(controllerKey)
	if !ok {
		return nil, false
	}
	ctrl, ok := v.(*session.Controller)
	return ctrl, ok
}

// lookup finds the caller's entry and pins it until finish.
func (g *Gateway) lookup(c *gin.Context) *entry {
	raw, err := c.Cookie(g.cookieName)
	if err != nil || raw == "" {
		return nil
	}
	sid, err := token.Parse(g.secret, raw, g.now)
	if err != nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.sessions[sid]
	if !ok {
		return nil
	}
	e.lastSeen = g.now()
	e.inFlight++
	return e
}

func (g *Gateway) finish(e *entry) {
	g.mu.Lock()
	e.inFlight--
	e.lastSeen = g.now()
	g.mu.Unlock()
}

// open registers a new pinned entry.
func (g *Gateway) open() (string, *entry, error) {
	provider := g.newProvider()
	ctrl := session.New(provider, g.records, g.log, g.sessionOpts...)
	sid := uuid.NewString()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		closeEntry(&entry{ctrl: ctrl, provider: provider})
		return "", nil, errClosed
	}
	e := &entry{ctrl: ctrl, provider: provider, lastSeen: g.now(), inFlight: 1}
	g.sessions[sid] = e
	g.mu.Unlock()

	g.log.Debug("session opened", slog.String("session", sid))
	return sid, e, nil
}

func (g *Gateway) release(sid string) {
	g.mu.Lock()
	e, ok := g.sessions[sid]
	delete(g.sessions, sid)
	g.mu.Unlock()
	if ok {
		closeEntry(e)
	}
}

func (g *Gateway) setCookie(c *gin.Context, sid string) error {
	signed, err := token.Issue(g.secret, sid, g.now(), cookieTTL)
	if err != nil {
		return err
	}
	c.SetSameSite(g.cookieSameSite)
	c.SetCookie(g.cookieName, signed, int(cookieTTL.Seconds()), "/", "", g.cookieSecure, true)
	return nil
}

// Sweep closes every session idle since before now minus the idle TTL and
// returns how many it closed. Sessions serving a request are skipped.
func (g *Gateway) Sweep(now time.Time) int {
	cutoff := now.Add(-g.idleTTL)

	g.mu.Lock()
	var stale []*entry
	for sid, e := range g.sessions {
		if e.inFlight == 0 && e.lastSeen.Before(cutoff) {
			stale = append(stale, e)
			delete(g.sessions, sid)
		}
	}
	g.mu.Unlock()

	for _, e := range stale {
		closeEntry(e)
	}
	if len(stale) > 0 {
		g.log.Debug("idle sessions closed", slog.Int("count", len(stale)))
	}
	return len(stale)
}

// Run sweeps idle sessions until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	every := g.idleTTL / 2
	if every < minSweepEvery {
		every = minSweepEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.Sweep(g.now())
		}
	}
}

// Len reports the number of open sessions.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Close tears down every session. Requests arriving afterwards get 503.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	all := make([]*entry, 0, len(g.sessions))
	for sid, e := range g.sessions {
		all = append(all, e)
		delete(g.sessions, sid)
	}
	g.mu.Unlock()

	for _, e := range all {
		closeEntry(e)
	}
}

func closeEntry(e *entry) {
	e.ctrl.Close()
	if closer, ok := e.provider.(io.Closer); ok {
		_ = closer.Close()
	}
}
