package origin

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServeFileWithinRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.pkg"), []byte("hello\n"), 0o644))

	s := New(root)
	req := httptest.NewRequest(http.MethodGet, "/big.pkg", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello\n", w.Body.String())
}

func TestRejectsPathEscapingRoot(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("nope"), 0o644))
	defer os.Remove(outside)

	s := New(root)
	req := httptest.NewRequest(http.MethodGet, "/../secret.txt", nil)
	w := httptest.NewRecorder()
	s.handle(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMissingFileReturns404(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	req := httptest.NewRequest(http.MethodGet, "/nope.pkg", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}
