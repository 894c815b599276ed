package digest

import (
	"crypto/md5" //nolint:gosec // content-addressing, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ComputeFile streams path through MD5 in 1MiB chunks and returns the hex
// digest, without holding the whole file in memory.
func ComputeFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s for digest: %w", path, err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec
	buf := make([]byte, 1<<20)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("read %s for digest: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
