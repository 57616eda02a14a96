// Package cache memoizes message participant lookups for the authorization
// guards.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/allegro/bigcache/v3"

	"messagely/internal/auth"
	"messagely/internal/logutil"
)

type (
	entry struct {
		From string `json:"from"`
		To   string `json:"to"`
	}

	// ParticipantCache is a read-through auth.ParticipantLookup. Sender and
	// recipient of a message never change, so entries only leave by age.
	ParticipantCache struct {
		cache *bigcache.BigCache
		next  auth.ParticipantLookup
	}
)

// NewParticipantCache wraps next with a cache evicting entries after ttl.
func NewParticipantCache(next auth.ParticipantLookup, ttl time.Duration) (*ParticipantCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Verbose = false
	cache, err := bigcache.NewBigCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("create participant cache: %w", err)
	}
	return &ParticipantCache{cache: cache, next: next}, nil
}

// MessageParticipants returns the cached participants of messageID or asks
// the wrapped lookup. Lookup errors, not-found included, are never cached.
func (c *ParticipantCache) MessageParticipants(ctx context.Context, messageID int64) (string, string, error) {
	key := strconv.FormatInt(messageID, 10)
	buf, err := c.cache.Get(key)
	if err == nil {
		var e entry
		if err := json.Unmarshal(buf, &e); err == nil {
			return e.From, e.To, nil
		}
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		log := logutil.GetOrDefault(ctx)
		log.Warn().Err(err).Int64("message_id", messageID).Msg("Participant cache read failed")
	}

	from, to, err := c.next.MessageParticipants(ctx, messageID)
	if err != nil {
		return "", "", err
	}
	if buf, err := json.Marshal(entry{From: from, To: to}); err == nil {
		if err := c.cache.Set(key, buf); err != nil {
			log := logutil.GetOrDefault(ctx)
			log.Warn().Err(err).Int64("message_id", messageID).Msg("Participant cache write failed")
		}
	}
	return from, to, nil
}

// Len reports the number of cached entries.
func (c *ParticipantCache) Len() int {
	return c.cache.Len()
}

// Close releases the cache.
func (c *ParticipantCache) Close() error {
	return c.cache.Close()
}
