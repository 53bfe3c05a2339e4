package cache

import (
	"context"
	"errors"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// RedisCache is a Redis implementation of the RevocationCache interface
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a new Redis revocation cache
func NewRedisCache(client redis.UniversalClient) ports.RevocationCache {
	return &RedisCache{
		client: client,
		prefix: "walletauth:refresh:",
	}
}

func (c *RedisCache) key(sessionID string) string {
	return c.prefix + sessionID
}

// Put binds the session to the refresh hash with expiration
func (c *RedisCache) Put(ctx context.Context, sessionID, refreshHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("cache: ttl must be positive")
	}
	if err := c.client.Set(ctx, c.key(sessionID), refreshHash, ttl).Err(); err != nil {
		return core.Unavailable("cache.put", err)
	}
	return nil
}

// inFlightMarker replaces a claimed refresh hash. Hashes are hex so the
// marker never collides with one.
const inFlightMarker = "in-flight"

// claimScript swaps a refresh hash for the in-flight marker in one step.
// It returns the previous value, or nil when the key is absent.
var claimScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return false
end
if v ~= ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
end
return v
`)

// Claim takes the refresh hash and leaves the in-flight marker behind
func (c *RedisCache) Claim(ctx context.Context, sessionID string, hold time.Duration) (string, ports.ClaimState, error) {
	if hold <= 0 {
		return "", ports.ClaimAbsent, errors.New("cache: hold must be positive")
	}
	val, err := claimScript.Run(ctx, c.client, []string{c.key(sessionID)}, inFlightMarker, hold.Milliseconds()).Text()
	if errors.Is(err, redis.Nil) {
		return "", ports.ClaimAbsent, nil
	}
	if err != nil {
		return "", ports.ClaimAbsent, core.Unavailable("cache.claim", err)
	}
	if val == inFlightMarker {
		return "", ports.ClaimInFlight, nil
	}
	return val, ports.ClaimTaken, nil
}

// Delete removes the entries of the given sessions
func (c *RedisCache) Delete(ctx context.Context, sessionIDs ...string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = c.key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return core.Unavailable("cache.delete", err)
	}
	return nil
}

// RedisNonceStore keeps outstanding challenge nonces in Redis
type RedisNonceStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisNonceStore creates a new Redis nonce store
func NewRedisNonceStore(client redis.UniversalClient) ports.NonceStore {
	return &RedisNonceStore{
		client: client,
		prefix: "walletauth:nonce:",
	}
}

// Issue records the nonce; an already outstanding nonce is a conflict
func (s *RedisNonceStore) Issue(ctx context.Context, nonce string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, s.prefix+nonce, "1", ttl).Result()
	if err != nil {
		return core.Unavailable("nonce.issue", err)
	}
	if !ok {
		return core.ConflictError{Op: "nonce.issue", Field: "nonce"}
	}
	return nil
}

// Consume deletes the nonce; only the caller that removed it gets true
func (s *RedisNonceStore) Consume(ctx context.Context, nonce string) (bool, error) {
	n, err := s.client.Del(ctx, s.prefix+nonce).Result()
	if err != nil {
		return false, core.Unavailable("nonce.consume", err)
	}
	return n == 1, nil
}
