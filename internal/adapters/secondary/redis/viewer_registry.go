// Package redis keeps ticket presence in Redis so every gateway replica
// sees the same viewers.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/ports"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:ticket:"

// entry is the stored hash value: one per (ticket, connection).
type entry struct {
	domain.Viewer
	JoinedAt int64 `json:"joinedAt"`
}

// ViewerRegistry stores presence as one hash per ticket, keyed by
// connection id. The whole hash expires after ttl without activity, so a
// crashed replica cannot leave viewers behind forever.
type ViewerRegistry struct {
	client *goredis.Client
	ttl    time.Duration
	now    func() time.Time
}

var _ ports.ViewerRegistry = (*ViewerRegistry)(nil)

// NewViewerRegistry creates a registry on an existing client.
func NewViewerRegistry(client *goredis.Client, ttl time.Duration) *ViewerRegistry {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ViewerRegistry{client: client, ttl: ttl, now: time.Now}
}

func ticketKey(ticketID int64) string {
	return keyPrefix + strconv.FormatInt(ticketID, 10)
}

// Add records the connection as viewing the ticket and refreshes the TTL.
// Re-adding a connection keeps its original join time.
func (r *ViewerRegistry) Add(ctx context.Context, ticketID int64, connectionID string, viewer domain.Viewer) error {
	key := ticketKey(ticketID)

	joinedAt := r.now().UnixNano()
	if existing, err := r.client.HGet(ctx, key, connectionID).Result(); err == nil {
		var e entry
		if json.Unmarshal([]byte(existing), &e) == nil {
			joinedAt = e.JoinedAt
		}
	} else if !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("read presence entry: %w", err)
	}

	data, err := json.Marshal(entry{Viewer: viewer, JoinedAt: joinedAt})
	if err != nil {
		return fmt.Errorf("encode presence entry: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, connectionID, data)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store presence entry: %w", err)
	}
	return nil
}

// Remove deletes the connection's entry and returns the viewer it held, or
// nil when there was none.
func (r *ViewerRegistry) Remove(ctx context.Context, ticketID int64, connectionID string) (*domain.Viewer, error) {
	key := ticketKey(ticketID)

	raw, err := r.client.HGet(ctx, key, connectionID).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presence entry: %w", err)
	}

	removed, err := r.client.HDel(ctx, key, connectionID).Result()
	if err != nil {
		return nil, fmt.Errorf("delete presence entry: %w", err)
	}
	if removed == 0 {
		// Another replica got there first.
		return nil, nil
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decode presence entry: %w", err)
	}
	return &e.Viewer, nil
}

// List returns every entry of the ticket, oldest join first.
func (r *ViewerRegistry) List(ctx context.Context, ticketID int64) ([]domain.Viewer, error) {
	values, err := r.client.HVals(ctx, ticketKey(ticketID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence entries: %w", err)
	}

	entries := make([]entry, 0, len(values))
	for _, raw := range values {
		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].JoinedAt < entries[j].JoinedAt })

	viewers := make([]domain.Viewer, 0, len(entries))
	for _, e := range entries {
		viewers = append(viewers, e.Viewer)
	}
	return viewers, nil
}

// Ping checks the connection; used by readiness probes.
func (r *ViewerRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
