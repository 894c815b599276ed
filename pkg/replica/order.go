package replica

import (
	"crypto/md5" //nolint:gosec // content-addressing key, not a security boundary
	"encoding/hex"
	"sort"
)

// Order returns pod ids sorted by hex(md5("<logicalPath>|<podID>")), the
// lightweight consistent-hash ring used to pick a deterministic, fleet-wide
// stable trial order for a logical path. The input slice is not mutated.
func Order(logicalPath string, pods []string) []string {
	ordered := make([]string, len(pods))
	copy(ordered, pods)
	keys := make(map[string]string, len(pods))
	for _, p := range pods {
		keys[p] = scoreKey(logicalPath, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return keys[ordered[i]] < keys[ordered[j]]
	})
	return ordered
}

// FileKey returns the hex16 digest used as the preheat-set key suffix for
// a logical path (hex(md5(path))[:16]).
func FileKey(logicalPath string) string {
	sum := md5.Sum([]byte(logicalPath)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:16]
}

func scoreKey(logicalPath, podID string) string {
	sum := md5.Sum([]byte(logicalPath + "|" + podID)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
