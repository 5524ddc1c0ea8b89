package shares

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBackendUnavailable reports that the counter backend could not be
// reached. Callers should surface it as a submission failure and retry with
// backoff rather than drop the share.
var ErrBackendUnavailable = errors.New("share counter backend unavailable")

// Snapshot is one coin's counters, taken and cleared atomically by
// SnapshotAndClear. It may only be considered consumed after the ledger
// commit that distributes it succeeds; until then Restore can put it back.
type Snapshot struct {
	Coin   string
	Shares map[string]int64
	Total  int64
}

// Counter keeps live per-coin, per-user share counts in Redis under
// "<coin>:submit:<username>". Counters expire after ttl so abandoned entries
// self-clean; every increment refreshes the expiry.
type Counter struct {
	rdb   *redis.Client
	coins []string
	ttl   time.Duration
}

func NewCounter(rdb *redis.Client, coins []string, ttl time.Duration) *Counter {
	return &Counter{rdb: rdb, coins: coins, ttl: ttl}
}

func key(coin, username string) string {
	return coin + ":submit:" + username
}

// RecordShare credits one submitted share to every coin this pool pays
// jointly, in a single pipeline.
func (c *Counter) RecordShare(ctx context.Context, username string) error {
	pipe := c.rdb.TxPipeline()
	for _, coin := range c.coins {
		k := key(coin, username)
		pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// takeScript reads and deletes every counter for one coin in a single
// server-side evaluation, so a share arriving between read and delete is
// never lost.
var takeScript = redis.NewScript(`
local keys = redis.call('KEYS', ARGV[1])
local out = {}
for _, key in ipairs(keys) do
    local v = redis.call('GET', key)
    redis.call('DEL', key)
    if v then
        out[#out+1] = key
        out[#out+1] = v
    end
end
return out
`)

// SnapshotAndClear atomically takes the full set of non-zero counters for one
// coin, returning the per-user counts and their total.
func (c *Counter) SnapshotAndClear(ctx context.Context, coin string) (*Snapshot, error) {
	prefix := coin + ":submit:"
	res, err := takeScript.Run(ctx, c.rdb, []string{}, prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	pairs, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected take script reply %T", ErrBackendUnavailable, res)
	}

	snap := &Snapshot{Coin: coin, Shares: make(map[string]int64)}
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		username := strings.TrimPrefix(k, prefix)
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		snap.Shares[username] = n
		snap.Total += n
	}
	return snap, nil
}

// Restore re-submits a snapshot whose ledger commit failed. Restored counts
// merge with any shares submitted since the take.
func (c *Counter) Restore(ctx context.Context, snap *Snapshot) error {
	if snap == nil || len(snap.Shares) == 0 {
		return nil
	}
	pipe := c.rdb.TxPipeline()
	for username, n := range snap.Shares {
		k := key(snap.Coin, username)
		pipe.IncrBy(ctx, k, n)
		pipe.Expire(ctx, k, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Counts returns one user's live per-coin counts since the last settlement.
func (c *Counter) Counts(ctx context.Context, username string) (map[string]int64, error) {
	pipe := c.rdb.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(c.coins))
	for _, coin := range c.coins {
		cmds[coin] = pipe.Get(ctx, key(coin, username))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	counts := make(map[string]int64, len(c.coins))
	for coin, cmd := range cmds {
		n, err := cmd.Int64()
		if err != nil {
			n = 0
		}
		counts[coin] = n
	}
	return counts, nil
}
