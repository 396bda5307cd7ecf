package memory

import (
	"context"
	"sync"

	"account_gateway/internal/identity"
	"account_gateway/platform/events"
)

// Client is a Provider bound to one client session of a Directory.
type Client struct {
	dir       *Directory
	feed      *events.Feed[*identity.Identity]
	closeOnce sync.Once
}

var _ identity.Provider = (*Client)(nil)

func newClient(dir *Directory) *Client {
	return &Client{dir: dir, feed: events.NewFeed[*identity.Identity](nil)}
}

func (c *Client) CreateIdentity(_ context.Context, email, password string) (*identity.Identity, error) {
	id, err := c.dir.create(email, password)
	if err != nil {
		return nil, err
	}
	c.feed.Publish(id.Clone())
	return id, nil
}

func (c *Client) VerifyCredentials(_ context.Context, email, password string) (*identity.Identity, error) {
	id, err := c.dir.verify(email, password)
	if err != nil {
		return nil, err
	}
	c.feed.Publish(id.Clone())
	return id, nil
}

func (c *Client) InvalidateSession(context.Context) error {
	c.feed.Publish(nil)
	return nil
}

func (c *Client) SendResetEmail(ctx context.Context, email string) error {
	return c.dir.sendReset(ctx, email)
}

func (c *Client) UpdateEmail(_ context.Context, who *identity.Identity, newEmail string) error {
	if err := c.requireSignedIn(who); err != nil {
		return err
	}
	updated, err := c.dir.updateEmail(who.ID, newEmail)
	if err != nil {
		return err
	}
	c.feed.Publish(updated.Clone())
	c.dir.broadcast(c, who.ID, updated)
	return nil
}

func (c *Client) UpdatePassword(_ context.Context, who *identity.Identity, newPassword string) error {
	if err := c.requireSignedIn(who); err != nil {
		return err
	}
	return c.dir.updatePassword(who.ID, newPassword)
}

func (c *Client) DeleteIdentity(_ context.Context, who *identity.Identity) error {
	if err := c.requireSignedIn(who); err != nil {
		return err
	}
	if err := c.dir.delete(who.ID); err != nil {
		return err
	}
	c.feed.Publish(nil)
	c.dir.broadcast(c, who.ID, nil)
	return nil
}

func (c *Client) Subscribe(fn func(*identity.Identity)) (unsubscribe func()) {
	return c.feed.Subscribe(fn)
}

// Close detaches the client from its directory and drops its subscribers.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.dir.detach(c)
		c.feed.Close()
	})
	return nil
}

func (c *Client) requireSignedIn(who *identity.Identity) error {
	cur := c.feed.Current()
	if who == nil || cur == nil || cur.ID != who.ID {
		return identity.ErrRequiresRecentLogin
	}
	return nil
}
