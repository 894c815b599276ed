package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/podcache/pkg/types"
	"github.com/redis/go-redis/v9"
)

// RegisterPod writes a pod's descriptor and inserts it into the active-pods
// sorted set with score = now. Both writes are issued as one pipeline so a
// reader never observes a descriptor without a matching active entry (or
// vice versa) for longer than one round trip.
func (s *Store) RegisterPod(ctx context.Context, d *types.PodDescriptor, now time.Time) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keyPodHash(d.ID), descriptorFields(d, now))
		pipe.ZAdd(ctx, keyPodsActive, redis.Z{Score: float64(now.Unix()), Member: d.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("register pod %s: %w", d.ID, err)
	}
	return nil
}

// Heartbeat refreshes a pod's descriptor and active-pods score. Matches
// the reference's heartbeat_loop: best-effort, errors are for the caller
// to log and continue, never to tear the pod down.
func (s *Store) Heartbeat(ctx context.Context, d *types.PodDescriptor, now time.Time) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keyPodHash(d.ID), descriptorFields(d, now))
		pipe.ZAdd(ctx, keyPodsActive, redis.Z{Score: float64(now.Unix()), Member: d.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("heartbeat pod %s: %w", d.ID, err)
	}
	return nil
}

// UnregisterPod removes a pod from the active set and deletes its
// descriptor and busy semaphore. Called on graceful shutdown.
func (s *Store) UnregisterPod(ctx context.Context, id string) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, keyPodsActive, id)
		pipe.Del(ctx, keyPodHash(id))
		pipe.Del(ctx, keyPodBusy(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("unregister pod %s: %w", id, err)
	}
	return nil
}

// FreshPods returns the members of pods:active whose heartbeat score is
// within FreshWindow of now. Order is unspecified; callers run it through
// the replica selector's consistent ordering before use.
func (s *Store) FreshPods(ctx context.Context, now time.Time) ([]types.FreshPod, error) {
	zs, err := s.rdb.ZRangeWithScores(ctx, keyPodsActive, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list active pods: %w", err)
	}
	cutoff := float64(now.Add(-FreshWindow).Unix())
	fresh := make([]types.FreshPod, 0, len(zs))
	for _, z := range zs {
		if z.Score >= cutoff {
			fresh = append(fresh, types.FreshPod{ID: z.Member.(string), Score: z.Score})
		}
	}
	return fresh, nil
}

// GetDescriptor fetches a pod's published attributes. Returns (nil, nil)
// if the hash does not exist (a ghost member of pods:active), letting
// callers distinguish "missing" from a transport error.
func (s *Store) GetDescriptor(ctx context.Context, id string) (*types.PodDescriptor, error) {
	m, err := s.rdb.HGetAll(ctx, keyPodHash(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get descriptor %s: %w", id, err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return parseDescriptor(id, m), nil
}

// RemoveGhost drops a pods:active member whose descriptor hash is gone,
// and any stale descriptor hash. The busy semaphore is left to expire via
// its own TTL. Used by the worker when it encounters a dangling member or
// a dead pod.
func (s *Store) RemoveGhost(ctx context.Context, id string) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, keyPodsActive, id)
		pipe.Del(ctx, keyPodHash(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove ghost pod %s: %w", id, err)
	}
	return nil
}

func descriptorFields(d *types.PodDescriptor, now time.Time) map[string]any {
	return map[string]any{
		"host":      d.Host,
		"port":      d.Port,
		"cache_dir": d.CacheDir,
		"origin":    d.Origin,
		"max_conns": d.MaxConns,
		"last_seen": now.Unix(),
	}
}

func parseDescriptor(id string, m map[string]string) *types.PodDescriptor {
	d := &types.PodDescriptor{ID: id}
	d.Host = m["host"]
	d.Port = atoiDefault(m["port"], 0)
	d.CacheDir = m["cache_dir"]
	d.Origin = m["origin"]
	d.MaxConns = atoiDefault(m["max_conns"], 1)
	d.LastSeenSec = int64(atoiDefault(m["last_seen"], 0))
	return d
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}
