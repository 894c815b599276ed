package replica

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderIsPermutation(t *testing.T) {
	pods := []string{"10.0.0.1:9001", "10.0.0.2:9001", "10.0.0.3:9001", "10.0.0.4:9001"}
	ordered := Order("big.pkg", pods)

	assert.Len(t, ordered, len(pods))
	assert.ElementsMatch(t, pods, ordered)
}

func TestOrderIsDeterministic(t *testing.T) {
	pods := []string{"a:1", "b:1", "c:1", "d:1", "e:1"}

	first := Order("packages/a/b/c.whl", pods)
	for i := 0; i < 20; i++ {
		shuffled := make([]string, len(pods))
		copy(shuffled, pods)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		again := Order("packages/a/b/c.whl", shuffled)
		require.Equal(t, first, again)
	}
}

func TestOrderStableUnderNonHeadChurn(t *testing.T) {
	pods := []string{"p1", "p2", "p3", "p4", "p5"}
	const k = 2

	ordered := Order("model.bin", pods)
	head := append([]string{}, ordered[:k]...)

	// Remove a pod outside the head K and add a new one; the head must
	// be unaffected because the ordering key depends only on (path, pod).
	var kept []string
	for _, p := range pods {
		if p != ordered[len(ordered)-1] {
			kept = append(kept, p)
		}
	}
	kept = append(kept, "p6")

	reordered := Order("model.bin", kept)
	assert.Equal(t, head, reordered[:k])
}

func TestFileKeyLength(t *testing.T) {
	assert.Len(t, FileKey("big.pkg"), 16)
	assert.Equal(t, FileKey("big.pkg"), FileKey("big.pkg"))
	assert.NotEqual(t, FileKey("big.pkg"), FileKey("other.pkg"))
}
