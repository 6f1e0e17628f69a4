package automation

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	rules   []AutomationRule
	expires time.Time
}

// RuleCache is the read-through cache between the dispatcher and the rule
// store. Kept deliberately small: one entry per trigger with a TTL, plus
// explicit invalidation from rule CRUD so edits apply without waiting out
// the TTL.
type RuleCache struct {
	repo RuleRepository
	ttl  time.Duration

	mu      sync.Mutex
	entries map[TriggerType]cacheEntry
}

func NewRuleCache(repo RuleRepository, ttl time.Duration) *RuleCache {
	return &RuleCache{
		repo:    repo,
		ttl:     ttl,
		entries: make(map[TriggerType]cacheEntry),
	}
}

// Get returns the active rules for the trigger, priority ascending.
func (c *RuleCache) Get(ctx context.Context, trigger TriggerType) ([]AutomationRule, error) {
	c.mu.Lock()
	entry, ok := c.entries[trigger]
	c.mu.Unlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.rules, nil
	}

	rules, err := c.repo.FindActiveByTrigger(ctx, trigger)
	if err != nil {
		// serve the stale entry rather than dropping the event
		if ok {
			return entry.rules, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[trigger] = cacheEntry{rules: rules, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return rules, nil
}

// Invalidate empties the cache; called after every rule create, update,
// enable/disable or delete.
func (c *RuleCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[TriggerType]cacheEntry)
	c.mu.Unlock()
}
