// Domain-stack extension (SPEC_FULL.md §3.1): an optional Redis-backed hot
// cache of the latest snapshot per controller. Grounded on
// control_plane/store/redis.go's connection-setup idiom; generalized from a
// tenant-scoped durable store to a best-effort read-side mirror.
package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Aurora-energy/R-EMS/internal/metrics"
)

// RedisMirror caches the latest envelope per (grid, controller) key in Redis.
// It is never read by Store.LoadLatest — only by debug/dashboard tooling
// that tolerates eventual consistency.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisMirror returns a mirror for the Redis server at addr, with entries
// expiring after ttl (0 disables expiry). It does not dial: the client
// connects lazily on its first command.
func NewRedisMirror(addr string, ttl time.Duration, log zerolog.Logger) *RedisMirror {
	return &RedisMirror{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		log:    log,
	}
}

func key(grid, controller string) string {
	return "r-ems:snapshot:" + grid + ":" + controller
}

// Put mirrors env best-effort; failures are logged and metric-counted but
// never propagated, matching spec.md §4.B's failure posture for the
// authoritative filesystem store.
func (m *RedisMirror) Put(ctx context.Context, grid, controller string, env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		m.log.Warn().Err(err).Str("grid", grid).Str("controller", controller).Msg("redis mirror marshal failed")
		metrics.SnapshotsFailedTotal.WithLabelValues(grid, controller).Inc()
		return
	}
	if err := m.client.Set(ctx, key(grid, controller), b, m.ttl).Err(); err != nil {
		m.log.Warn().Err(err).Str("grid", grid).Str("controller", controller).Msg("redis mirror write failed")
		metrics.SnapshotsFailedTotal.WithLabelValues(grid, controller).Inc()
	}
}

// Get returns the mirrored envelope, if present and still fresh.
func (m *RedisMirror) Get(ctx context.Context, grid, controller string) (*Envelope, bool) {
	b, err := m.client.Get(ctx, key(grid, controller)).Bytes()
	if err != nil {
		return nil, false
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, false
	}
	return &env, true
}

// Close releases the underlying connection pool.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
