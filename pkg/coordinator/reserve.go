package coordinator

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// reserveScript implements bounded-capacity admission: SCARD < limit ->
// SADD the token and (re)set the whole-set TTL, else refuse. Mirrors
// redis_lua.py's RESERVE_LUA exactly.
var reserveScript = redis.NewScript(`
local n = redis.call('SCARD', KEYS[1])
if n < tonumber(ARGV[1]) then
  redis.call('SADD', KEYS[1], ARGV[2])
  if tonumber(ARGV[3]) > 0 then
    redis.call('EXPIRE', KEYS[1], tonumber(ARGV[3]))
  end
  return 1
else
  return 0
end
`)

// releaseScript removes a token and returns the resulting set size,
// mirroring redis_lua.py's RELEASE_LUA.
var releaseScript = redis.NewScript(`
redis.call('SREM', KEYS[1], ARGV[1])
return redis.call('SCARD', KEYS[1])
`)

// Reserve attempts to admit token onto podID's busy semaphore, bounded by
// limit concurrent tokens, with a leak-protection TTL on the whole set.
// Returns true if admitted.
func (s *Store) Reserve(ctx context.Context, podID, token string, limit int) (bool, error) {
	res, err := reserveScript.Run(ctx, s.rdb, []string{keyPodBusy(podID)}, limit, token, int(ReserveTTL.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("reserve slot on pod %s: %w", podID, err)
	}
	return res == 1, nil
}

// Release removes token from podID's busy semaphore and returns the new
// occupancy. Safe to call even if the token was never admitted (or the
// set already expired).
func (s *Store) Release(ctx context.Context, podID, token string) (int64, error) {
	res, err := releaseScript.Run(ctx, s.rdb, []string{keyPodBusy(podID)}, token).Int64()
	if err != nil {
		return 0, fmt.Errorf("release slot on pod %s: %w", podID, err)
	}
	return res, nil
}

// BusyCount returns the current occupancy of podID's busy semaphore, used
// by tests and by pkg/podserver to refresh the busy-slots gauge; not on
// the admission hot path.
func (s *Store) BusyCount(ctx context.Context, podID string) (int64, error) {
	n, err := s.rdb.SCard(ctx, keyPodBusy(podID)).Result()
	if err != nil {
		return 0, fmt.Errorf("busy count for pod %s: %w", podID, err)
	}
	return n, nil
}
