package keycloak

import (
	"context"
	"log/slog"
	"time"

	"account_gateway/internal/identity"

	"golang.org/x/oauth2"
)

// watch keeps the session's tokens fresh until ctx is cancelled or Keycloak
// rejects the refresh token, which signs the client out.
func (c *Client) watch(ctx context.Context, gen uint64, tok *oauth2.Token) {
	log := c.realm.log
	for {
		if tok.Expiry.IsZero() || tok.RefreshToken == "" {
			return
		}
		if !sleep(ctx, time.Until(tok.Expiry)-c.realm.refreshLeeway) {
			return
		}

		next, err := c.realm.refresh(ctx, tok.RefreshToken)
		if ctx.Err() != nil {
			return
		}
		if isInvalidGrant(err) {
			log.Info("keycloak session ended remotely", slog.String("error", err.Error()))
			c.expire(gen)
			return
		}
		if err != nil {
			log.Warn("keycloak token refresh failed", slog.String("error", err.Error()))
			if !sleep(ctx, c.realm.retryDelay) {
				return
			}
			continue
		}

		// A refresh without an id_token keeps the identity we already have.
		id, err := c.realm.identityFromToken(ctx, next)
		if err != nil {
			id = nil
		}
		if !c.applyRefresh(gen, next, id) {
			return
		}
		tok = next
	}
}

func (c *Client) applyRefresh(gen uint64, tok *oauth2.Token, id *identity.Identity) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.token = tok
	var changed *identity.Identity
	if id != nil && c.who != nil && *id != *c.who {
		c.who = id.Clone()
		changed = id.Clone()
	}
	c.mu.Unlock()

	if changed != nil {
		c.feed.Publish(changed)
	}
	return true
}

func (c *Client) expire(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	c.mu.Unlock()

	c.feed.Publish(nil)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
