package tdlib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageFileCopiesUnderNewName(t *testing.T) {
	src := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	staged, err := stageFile(src, "report_555.pdf")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(filepath.Dir(staged)) })

	assert.Equal(t, "report_555.pdf", filepath.Base(staged))
	data, err := os.ReadFile(staged)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestStageFileStripsPathFromName(t *testing.T) {
	src := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

	staged, err := stageFile(src, "../../evil.pdf")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(filepath.Dir(staged)) })

	assert.Equal(t, "evil.pdf", filepath.Base(staged))
}
