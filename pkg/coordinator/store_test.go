package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuemby/podcache/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(rdb)
}

func testDescriptor(id string) *types.PodDescriptor {
	return &types.PodDescriptor{
		ID:       id,
		Host:     "10.0.0.1",
		Port:     8080,
		CacheDir: "/cache",
		Origin:   "http://origin:8000",
		MaxConns: 4,
	}
}

func TestRegisterAndGetDescriptor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.RegisterPod(ctx, testDescriptor("pod-a"), now))

	d, err := s.GetDescriptor(ctx, "pod-a")
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, "10.0.0.1", d.Host)
	require.Equal(t, 8080, d.Port)
	require.Equal(t, 4, d.MaxConns)
	require.Equal(t, now.Unix(), d.LastSeenSec)
}

func TestGetDescriptorMissingReturnsNilNotError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	d, err := s.GetDescriptor(ctx, "ghost")
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestFreshPodsExcludesStaleEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.RegisterPod(ctx, testDescriptor("fresh"), now))
	require.NoError(t, s.RegisterPod(ctx, testDescriptor("stale"), now.Add(-FreshWindow*2)))

	fresh, err := s.FreshPods(ctx, now)
	require.NoError(t, err)
	ids := make([]string, len(fresh))
	for i, p := range fresh {
		ids[i] = p.ID
	}
	require.ElementsMatch(t, []string{"fresh"}, ids)
}

func TestHeartbeatRefreshesScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t0 := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.RegisterPod(ctx, testDescriptor("pod-a"), t0))
	require.NoError(t, s.Heartbeat(ctx, testDescriptor("pod-a"), t0.Add(-FreshWindow*3)))

	fresh, err := s.FreshPods(ctx, t0)
	require.NoError(t, err)
	require.Empty(t, fresh, "heartbeat at a stale timestamp should leave the pod stale")
}

func TestUnregisterPodRemovesEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.RegisterPod(ctx, testDescriptor("pod-a"), now))
	ok, err := s.Reserve(ctx, "pod-a", "tok-1", 2)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.UnregisterPod(ctx, "pod-a"))

	d, err := s.GetDescriptor(ctx, "pod-a")
	require.NoError(t, err)
	require.Nil(t, d)

	n, err := s.BusyCount(ctx, "pod-a")
	require.NoError(t, err)
	require.Zero(t, n)

	fresh, err := s.FreshPods(ctx, now)
	require.NoError(t, err)
	require.Empty(t, fresh)
}

func TestRemoveGhostDropsActiveEntryOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.rdb.ZAdd(ctx, keyPodsActive, redis.Z{Score: float64(now.Unix()), Member: "ghost"}).Err())

	require.NoError(t, s.RemoveGhost(ctx, "ghost"))

	fresh, err := s.FreshPods(ctx, now)
	require.NoError(t, err)
	require.Empty(t, fresh)
}

func TestReserveBoundsCapacity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.Reserve(ctx, "pod-a", "tok-1", 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Reserve(ctx, "pod-a", "tok-2", 1)
	require.NoError(t, err)
	require.False(t, ok, "second token should be refused once the limit of 1 is reached")

	n, err := s.Release(ctx, "pod-a", "tok-1")
	require.NoError(t, err)
	require.Zero(t, n)

	ok, err = s.Reserve(ctx, "pod-a", "tok-2", 1)
	require.NoError(t, err)
	require.True(t, ok, "slot freed by release should admit a new token")
}

func TestReleaseIsSafeOnUnreservedToken(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.Release(ctx, "pod-a", "never-reserved")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestEnsurePreheatSetElectsHeadK(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ordered := []string{"pod-1", "pod-2", "pod-3"}
	require.NoError(t, s.EnsurePreheatSet(ctx, "images/foo.tar", ordered))

	members, err := s.PreheatSet(ctx, "images/foo.tar")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"pod-1", "pod-2"}, members)
}

func TestEnsurePreheatSetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ordered := []string{"pod-1", "pod-2", "pod-3"}
	require.NoError(t, s.EnsurePreheatSet(ctx, "images/foo.tar", ordered))
	require.NoError(t, s.EnsurePreheatSet(ctx, "images/foo.tar", []string{"pod-3", "pod-4"}))

	members, err := s.PreheatSet(ctx, "images/foo.tar")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"pod-1", "pod-2"}, members, "already-elected set must not be re-elected")
}

func TestIsAuthorizedBeforeElectionAllowsAny(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.IsAuthorized(ctx, "images/new.tar", "pod-9")
	require.NoError(t, err)
	require.True(t, ok, "an unelected path has no authorized set yet, so any pod may fill it")
}

func TestIsAuthorizedAfterElectionRejectsNonMember(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.EnsurePreheatSet(ctx, "images/foo.tar", []string{"pod-1", "pod-2", "pod-3"}))

	ok, err := s.IsAuthorized(ctx, "images/foo.tar", "pod-3")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.IsAuthorized(ctx, "images/foo.tar", "pod-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDigestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.GetDigest(ctx, "images/foo.tar")
	require.NoError(t, err)
	require.False(t, ok)

	set, err := s.SetDigestIfAbsent(ctx, "images/foo.tar", "abc123")
	require.NoError(t, err)
	require.True(t, set)

	got, ok, err := s.GetDigest(ctx, "images/foo.tar")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc123", got)
}

func TestSetDigestIfAbsentFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	set, err := s.SetDigestIfAbsent(ctx, "images/foo.tar", "first")
	require.NoError(t, err)
	require.True(t, set)

	set, err = s.SetDigestIfAbsent(ctx, "images/foo.tar", "second")
	require.NoError(t, err)
	require.False(t, set)

	got, ok, err := s.GetDigest(ctx, "images/foo.tar")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "first", got)
}
