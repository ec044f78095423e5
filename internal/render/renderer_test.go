package render

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilename(t *testing.T) {
	at := time.Date(2026, 2, 4, 8, 30, 5, 0, time.UTC)
	name := Filename("moyuren", at)
	assert.Equal(t, "moyuren_20260204_083005.jpg", name)
	assert.Regexp(t, regexp.MustCompile(`^moyuren_\d{8}_\d{6}\.jpg$`), name)
}

func TestChromeRenderer_DefaultsAndCDNFlag(t *testing.T) {
	dir := t.TempDir()
	tplPath := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(tplPath,
		[]byte(`{{if .use_china_cdn}}cdn-cn{{else}}cdn-global{{end}}:{{.title}}`), 0o644))

	r := NewChromeRenderer(dir, Defaults{UseChinaCDN: true}, nil)
	assert.Equal(t, 2.0, r.defaults.DeviceScaleFactor, "zero scale inherits 2.0")
	assert.Equal(t, 90, r.defaults.JPEGQuality, "zero quality inherits 90")

	html, err := r.evalTemplate(map[string]any{"title": "今日"}, Descriptor{Path: tplPath})
	require.NoError(t, err)
	assert.Equal(t, "cdn-cn:今日", string(html))

	global := NewChromeRenderer(dir, Defaults{DeviceScaleFactor: 1.5, JPEGQuality: 75}, nil)
	assert.Equal(t, 1.5, global.defaults.DeviceScaleFactor)
	html, err = global.evalTemplate(map[string]any{"title": "x"}, Descriptor{Path: tplPath})
	require.NoError(t, err)
	assert.Equal(t, "cdn-global:x", string(html))
}

func TestFakeRenderer_PublishesAtomically(t *testing.T) {
	dir := t.TempDir()
	f := &FakeRenderer{
		StaticDir: dir,
		Now:       func() time.Time { return time.Date(2026, 2, 4, 8, 30, 5, 0, time.UTC) },
	}

	name, err := f.Render(context.Background(), map[string]any{}, Descriptor{Name: "moyuren"})
	require.NoError(t, err)
	assert.Equal(t, "moyuren_20260204_083005.jpg", name)
	assert.FileExists(t, filepath.Join(dir, name))

	// No temp litter.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 1, f.Calls)
}
