package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// GetDigest returns the recorded digest for logicalPath, or ("", false)
// if no digest has ever been recorded.
func (s *Store) GetDigest(ctx context.Context, logicalPath string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, keyDigest(logicalPath)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get digest %s: %w", logicalPath, err)
	}
	return v, true, nil
}

// SetDigestIfAbsent records digestHex for logicalPath only if no digest
// is already recorded. First writer wins: the entry is canonical for its
// unbounded lifetime.
func (s *Store) SetDigestIfAbsent(ctx context.Context, logicalPath, digestHex string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, keyDigest(logicalPath), digestHex, 0).Result()
	if err != nil {
		return false, fmt.Errorf("set digest %s: %w", logicalPath, err)
	}
	return ok, nil
}
