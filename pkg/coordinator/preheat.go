package coordinator

import (
	"context"
	"fmt"

	"github.com/cuemby/podcache/pkg/replica"
)

// PreheatSet returns the current members authorized to hold logicalPath.
// An empty, non-error result means no set has been elected yet.
func (s *Store) PreheatSet(ctx context.Context, logicalPath string) ([]string, error) {
	key := keyPreheat(replica.FileKey(logicalPath))
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read preheat set %s: %w", logicalPath, err)
	}
	return members, nil
}

// EnsurePreheatSet elects the preheat set for logicalPath if it does not
// already have PreheatK members, using a short-lived distributed lock
// to serialize election against concurrent workers.
// orderedPods must already be in consistent-hash order (replica.Order);
// the head K of that order become the authorized replicas.
func (s *Store) EnsurePreheatSet(ctx context.Context, logicalPath string, orderedPods []string) error {
	fileKey := replica.FileKey(logicalPath)
	setKey := keyPreheat(fileKey)
	lockKey := keyPreheatLock(fileKey)

	n, err := s.rdb.SCard(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("check preheat set size %s: %w", logicalPath, err)
	}
	if n >= PreheatK {
		return nil
	}

	acquired, err := s.rdb.SetNX(ctx, lockKey, "1", PreheatLockTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire preheat lock %s: %w", logicalPath, err)
	}
	if !acquired {
		// Someone else is electing; leave the current (possibly empty)
		// set as-is.
		return nil
	}
	defer s.rdb.Del(ctx, lockKey)

	n2, err := s.rdb.SCard(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("recheck preheat set size %s: %w", logicalPath, err)
	}
	if n2 >= PreheatK {
		return nil
	}

	targets := orderedPods
	if len(targets) > PreheatK {
		targets = targets[:PreheatK]
	}
	if len(targets) == 0 {
		return nil
	}

	members := make([]interface{}, len(targets))
	for i, t := range targets {
		members[i] = t
	}
	if err := s.rdb.SAdd(ctx, setKey, members...).Err(); err != nil {
		return fmt.Errorf("elect preheat set %s: %w", logicalPath, err)
	}
	if err := s.rdb.Expire(ctx, setKey, PreheatTTL).Err(); err != nil {
		return fmt.Errorf("set preheat ttl %s: %w", logicalPath, err)
	}
	return nil
}

// IsAuthorized reports whether podID may serve logicalPath: either the
// preheat set has no members yet (transitional, first-downloader case)
// or podID is one of its members.
func (s *Store) IsAuthorized(ctx context.Context, logicalPath, podID string) (bool, error) {
	members, err := s.PreheatSet(ctx, logicalPath)
	if err != nil {
		return false, err
	}
	if len(members) == 0 {
		return true, nil
	}
	for _, m := range members {
		if m == podID {
			return true, nil
		}
	}
	return false, nil
}
