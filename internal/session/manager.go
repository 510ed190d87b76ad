package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/errand/internal/undo"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultTTL              = 30 * time.Minute
	DefaultRecentTasks      = 5
	DefaultRecentPeople     = 5
	DefaultRecentTurns      = 6
	DefaultPatternThreshold = 0.6
)

// Options configures a Manager.
type Options struct {
	TTL    time.Duration
	Limits Limits

	// PatternThreshold separates strong from tentative patterns in
	// prompts. It never hides a pattern.
	PatternThreshold float64
}

func (o *Options) applyDefaults() {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Limits.RecentTasks <= 0 {
		o.Limits.RecentTasks = DefaultRecentTasks
	}
	if o.Limits.RecentPeople <= 0 {
		o.Limits.RecentPeople = DefaultRecentPeople
	}
	if o.Limits.UndoDepth <= 0 {
		o.Limits.UndoDepth = undo.DefaultDepth
	}
	if o.Limits.RecentTurns <= 0 {
		o.Limits.RecentTurns = DefaultRecentTurns
	}
	if o.PatternThreshold <= 0 {
		o.PatternThreshold = DefaultPatternThreshold
	}
}

// Manager loads and updates conversation contexts. It serializes its own
// read-modify-write cycles per user; callers that need a whole turn to be
// exclusive hold a separate lock around their calls.
type Manager struct {
	store  Store
	opts   Options
	locks  KeyedMutex
	logger *slog.Logger
	now    func() time.Time
}

// NewManager returns a manager over store.
func NewManager(store Store, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()
	return &Manager{
		store:  store,
		opts:   opts,
		logger: logger.With("component", "session"),
		now:    time.Now,
	}
}

// PatternThreshold returns the strong/tentative cutoff for patterns.
func (m *Manager) PatternThreshold() float64 {
	return m.opts.PatternThreshold
}

// Load returns a snapshot of the user's context, creating a default one
// if none exists. An expired or missing session is replaced with an
// empty one; preferences, patterns, and entities survive.
func (m *Manager) Load(ctx context.Context, userID string) (*ConversationContext, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.load(ctx, userID)
}

func (m *Manager) load(ctx context.Context, userID string) (*ConversationContext, error) {
	c, err := m.store.Get(ctx, userID)
	switch {
	case errors.Is(err, errCorrupt):
		m.logger.Warn("discarding unreadable context", "user", userID, "error", err)
		c = nil
	case err != nil:
		return nil, fmt.Errorf("load context: %w", err)
	}
	if c == nil {
		c = newContext(userID)
	}
	if c.UserID == "" {
		c.UserID = userID
	}
	if c.Preferences == nil {
		c.Preferences = make(map[string]string)
	}

	now := m.now()
	if c.Session == nil || !now.Before(c.Session.ExpiresAt) {
		if c.Session != nil {
			m.logger.Debug("session expired", "user", userID, "expired_at", c.Session.ExpiresAt)
		}
		c.Session = &Session{ExpiresAt: now.Add(m.opts.TTL)}
	}
	return c, nil
}

// Update merges d into the user's context, refreshes the session expiry,
// persists the result, and returns the new snapshot.
func (m *Manager) Update(ctx context.Context, userID string, d Delta) (*ConversationContext, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	c, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	m.commit(c, d)
	if err := m.store.Put(ctx, c); err != nil {
		return nil, fmt.Errorf("save context: %w", err)
	}
	return c, nil
}

func (m *Manager) commit(c *ConversationContext, d Delta) {
	now := m.now()
	apply(c, d, m.opts.Limits, now)
	c.Session.ExpiresAt = now.Add(m.opts.TTL)
	c.UpdatedAt = now
}

// PushUndo records a on the user's undo stack.
func (m *Manager) PushUndo(ctx context.Context, userID string, a undo.Action) error {
	_, err := m.Update(ctx, userID, Delta{PushUndo: []undo.Action{a}})
	return err
}

// PopUndo removes and returns the most recent undo action.
func (m *Manager) PopUndo(ctx context.Context, userID string) (undo.Action, bool, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	c, err := m.load(ctx, userID)
	if err != nil {
		return undo.Action{}, false, err
	}
	a, rest, ok := c.Session.UndoStack.Pop()
	if !ok {
		return undo.Action{}, false, nil
	}
	c.Session.UndoStack = rest
	m.commit(c, Delta{})
	if err := m.store.Put(ctx, c); err != nil {
		return undo.Action{}, false, fmt.Errorf("save context: %w", err)
	}
	return a, true, nil
}

// SetPreference stores a preference and returns what it replaced, which
// is what an undo needs.
func (m *Manager) SetPreference(ctx context.Context, userID, key, value string) (previous string, existed bool, err error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	c, err := m.load(ctx, userID)
	if err != nil {
		return "", false, err
	}
	previous, existed = c.Preferences[key]
	m.commit(c, Delta{Preferences: map[string]string{key: value}})
	if err := m.store.Put(ctx, c); err != nil {
		return "", false, fmt.Errorf("save context: %w", err)
	}
	return previous, existed, nil
}

// RestorePreference puts a preference back the way it was without
// recording an undo entry.
func (m *Manager) RestorePreference(ctx context.Context, userID, key, value string, existed bool) error {
	d := Delta{RemovePreferences: []string{key}}
	if existed {
		d = Delta{Preferences: map[string]string{key: value}}
	}
	_, err := m.Update(ctx, userID, d)
	return err
}
