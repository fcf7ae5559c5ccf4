package cache

import (
	"context"

	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
	"hzbot/internal/pkg/telemetry"
)

// generation returns the merge generation. Capture it before reading the store.
func (c *Cache) generation() uint64 {
	c.mergeMu.RLock()
	defer c.mergeMu.RUnlock()
	return c.mergeGen
}

// remember caches u unless a merge completed after gen was captured.
func (c *Cache) remember(gen uint64, u *store.User) {
	c.mergeMu.RLock()
	defer c.mergeMu.RUnlock()

	if gen != c.mergeGen {
		return
	}
	c.users.Set(u.ID, *u)
	for _, ident := range u.Identifiers {
		c.identifiers.Set(ident, u.ID)
	}
}

func (c *Cache) rememberSession(gen uint64, s *store.WebSession) {
	c.mergeMu.RLock()
	defer c.mergeMu.RUnlock()

	if gen != c.mergeGen {
		return
	}
	c.sessions.Set(s.SessionID, *s)
}

// GetUserByID returns the user with the given id, or nil.
func (c *Cache) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	if u, ok := c.users.Get(id); ok {
		telemetry.CacheLookup(CollectionUsers, true)
		return &u, nil
	}
	telemetry.CacheLookup(CollectionUsers, false)

	gen := c.generation()
	u, err := c.store.GetUserByID(ctx, id)
	if err != nil || u == nil {
		return u, err
	}
	c.remember(gen, u)
	return u, nil
}

// GetUser resolves a platform identity to its user, or nil.
func (c *Cache) GetUser(ctx context.Context, ident platform.UserIdentifier) (*store.User, error) {
	return c.getUser(ctx, c.generation(), ident)
}

func (c *Cache) getUser(ctx context.Context, gen uint64, ident platform.UserIdentifier) (*store.User, error) {
	if id, ok := c.identifiers.Get(ident); ok {
		telemetry.CacheLookup(CollectionIdentifiers, true)
		return c.GetUserByID(ctx, id)
	}
	telemetry.CacheLookup(CollectionIdentifiers, false)

	u, err := c.store.GetUser(ctx, ident)
	if err != nil || u == nil {
		return u, err
	}
	c.remember(gen, u)
	return u, nil
}

// GetOrCreateUser resolves a platform identity, creating the user on first sight.
func (c *Cache) GetOrCreateUser(ctx context.Context, ident platform.UserIdentifier) (*store.User, error) {
	gen := c.generation()
	if u, err := c.getUser(ctx, gen, ident); err != nil || u != nil {
		return u, err
	}

	u, err := c.store.GetOrCreateUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	c.remember(gen, u)
	return u, nil
}

// MergeUsers merges drop into keep. Both ids are evicted and the identifier and session
// collections are cleared, so no identity or session can keep pointing at the deleted user.
// Fills that read the store before the merge are discarded.
func (c *Cache) MergeUsers(ctx context.Context, keepID, dropID int64) (*store.User, error) {
	merged, err := c.store.MergeUsers(ctx, keepID, dropID)

	c.mergeMu.Lock()
	c.mergeGen++
	c.users.Remove(keepID)
	c.users.Remove(dropID)
	c.identifiers.Clear()
	c.sessions.Clear()
	c.mergeMu.Unlock()

	if err != nil {
		return nil, err
	}

	c.logger.Info().Int64("keep_id", keepID).Int64("drop_id", dropID).Msg("Users merged.")
	return merged, nil
}

// GetWebSession returns the session, or nil.
func (c *Cache) GetWebSession(ctx context.Context, sessionID string) (*store.WebSession, error) {
	if s, ok := c.sessions.Get(sessionID); ok {
		telemetry.CacheLookup(CollectionSessions, true)
		return &s, nil
	}
	telemetry.CacheLookup(CollectionSessions, false)

	gen := c.generation()
	s, err := c.store.GetWebSession(ctx, sessionID)
	if err != nil || s == nil {
		return s, err
	}
	c.rememberSession(gen, s)
	return s, nil
}

// CreateWebSession creates a session for the user and caches it.
func (c *Cache) CreateWebSession(ctx context.Context, userID int64, username string) (*store.WebSession, error) {
	gen := c.generation()
	s, err := c.store.CreateWebSession(ctx, userID, username)
	if err != nil {
		return nil, err
	}
	c.rememberSession(gen, s)
	return s, nil
}

// GetUserData reads a user data entry straight from the store.
func (c *Cache) GetUserData(ctx context.Context, userID int64, name string) (*store.UserData, error) {
	return c.store.GetUserData(ctx, userID, name)
}

// SetUserData writes a user data entry.
func (c *Cache) SetUserData(ctx context.Context, data store.UserData, overwrite bool) error {
	return c.store.SetUserData(ctx, data, overwrite)
}

// RemoveUserData deletes a user data entry.
func (c *Cache) RemoveUserData(ctx context.Context, userID int64, name string) error {
	return c.store.RemoveUserData(ctx, userID, name)
}
