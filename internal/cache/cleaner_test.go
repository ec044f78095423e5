package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moyuren/internal/errcode"
)

func TestClean_RemovesOnlyExpiredMatchingFiles(t *testing.T) {
	dataDir := t.TempDir()
	imageDir := t.TempDir()
	today := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)

	touch := func(dir, name string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	// retain_days=30 ⇒ cutoff 2026-01-06.
	touch(dataDir, "2026-01-05.json") // expired
	touch(dataDir, "2026-01-06.json") // exactly at cutoff, kept
	touch(dataDir, "2026-02-05.json") // today, kept
	touch(dataDir, "notes.txt")       // non-matching, kept

	touch(imageDir, "moyuren_20260104_090000.jpg") // expired
	touch(imageDir, "moyuren_20260205_083000.jpg") // kept
	touch(imageDir, "side-bar_20260110_120000.jpg")
	touch(imageDir, "README.md")

	res, err := Clean(dataDir, imageDir, today, 30)
	require.NoError(t, err)

	assert.Equal(t, 2, res.DeletedFiles)
	assert.Equal(t, int64(2), res.FreedBytes)
	assert.Equal(t, "2026-01-06", res.OldestKept)

	assert.NoFileExists(t, filepath.Join(dataDir, "2026-01-05.json"))
	assert.FileExists(t, filepath.Join(dataDir, "2026-01-06.json"))
	assert.FileExists(t, filepath.Join(dataDir, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(imageDir, "moyuren_20260104_090000.jpg"))
	assert.FileExists(t, filepath.Join(imageDir, "moyuren_20260205_083000.jpg"))
	assert.FileExists(t, filepath.Join(imageDir, "side-bar_20260110_120000.jpg"))
	assert.FileExists(t, filepath.Join(imageDir, "README.md"))
}

func TestClean_MissingDirectoriesAreTolerated(t *testing.T) {
	res, err := Clean("/nonexistent/data", "/nonexistent/images", time.Now(), 30)
	require.NoError(t, err)
	assert.Zero(t, res.DeletedFiles)
	assert.Empty(t, res.OldestKept)
}

func TestClean_UnreadableDirectoryReportsFailure(t *testing.T) {
	// A regular file where a directory is expected is an I/O failure, not a
	// missing dir.
	notADir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o644))

	_, err := Clean(notADir, t.TempDir(), time.Now(), 30)
	require.Error(t, err)
	assert.True(t, errcode.Is(err, errcode.OpsCleanupFailed))
}
