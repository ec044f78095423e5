package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"moyuren/internal/errcode"
	"moyuren/internal/metrics"
)

var (
	dataFileRe  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.json$`)
	imageFileRe = regexp.MustCompile(`^[A-Za-z0-9_-]+_(\d{8})_\d{6}\.jpg$`)
)

// CleanResult summarises one cleaner pass.
type CleanResult struct {
	DeletedFiles int    `json:"deleted_files"`
	FreedBytes   int64  `json:"freed_bytes"`
	OldestKept   string `json:"oldest_kept"` // YYYY-MM-DD, empty when nothing kept
}

// Clean removes per-day data files and generated images whose embedded date
// is strictly older than today-retainDays. Files that match neither naming
// pattern are left alone. The currently published image is implicitly safe:
// it is always the newest file for its template. Missing directories are
// fine; any other I/O failure is collected and reported as OPS_8001 alongside
// the partial result.
func Clean(dataDir, imageDir string, today time.Time, retainDays int) (CleanResult, error) {
	cutoff := today.AddDate(0, 0, -retainDays)

	var res CleanResult
	var oldestKept time.Time
	var failures []error

	scan := func(dir string, re *regexp.Regexp, layout string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Str("dir", dir).Err(err).Msg("cleaner cannot read directory")
				failures = append(failures, err)
			}
			return
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			m := re.FindStringSubmatch(e.Name())
			if m == nil {
				continue
			}
			d, err := time.ParseInLocation(layout, m[1], today.Location())
			if err != nil {
				continue
			}
			if d.Before(cutoff) {
				path := filepath.Join(dir, e.Name())
				var size int64
				if info, err := e.Info(); err == nil {
					size = info.Size()
				}
				if err := os.Remove(path); err != nil {
					log.Warn().Str("file", path).Err(err).Msg("cleaner unlink failed")
					failures = append(failures, err)
					continue
				}
				res.DeletedFiles++
				res.FreedBytes += size
				metrics.CleanupDeletedFiles.Inc()
				continue
			}
			if oldestKept.IsZero() || d.Before(oldestKept) {
				oldestKept = d
			}
		}
	}

	scan(dataDir, dataFileRe, "2006-01-02")
	scan(imageDir, imageFileRe, "20060102")

	if !oldestKept.IsZero() {
		res.OldestKept = oldestKept.Format("2006-01-02")
	}

	log.Info().
		Int("deleted", res.DeletedFiles).
		Int64("freed_bytes", res.FreedBytes).
		Str("oldest_kept", res.OldestKept).
		Int("failures", len(failures)).
		Msg("cache cleanup finished")

	if len(failures) > 0 {
		return res, errcode.Wrap(errcode.OpsCleanupFailed,
			fmt.Sprintf("%d cleanup operations failed", len(failures)),
			errors.Join(failures...))
	}
	return res, nil
}
