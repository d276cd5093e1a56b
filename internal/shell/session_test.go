package shell_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunnytower/psh/internal/config"
	"github.com/sunnytower/psh/internal/shell"
)

func TestOpenWithoutTerminal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	f, err := os.Create(filepath.Join(dir, "input"))
	require.NoError(t, err)
	defer f.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, stdin := range []*os.File{f, r} {
		s := shell.Open(config.Default(), stdin, w, w, logger)
		assert.False(t, s.Interactive)
		assert.Nil(t, s.Terminal)
		assert.Nil(t, s.Policy)
		assert.NoError(t, s.Close())
	}
}
