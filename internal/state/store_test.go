package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "state.json"))
}

func TestLoad_MissingFileIsNil(t *testing.T) {
	s := tempStore(t)
	doc, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLoad_V1Migration(t *testing.T) {
	s := tempStore(t)
	v1 := `{
		"date": "2026-02-04",
		"timestamp": "2026-02-04T10:00:00+08:00",
		"filename": "moyuren_20260204_100000.jpg",
		"weekday": "星期三",
		"news_list": [{"num": 1, "text": "hello"}]
	}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(v1), 0o644))

	doc, err := s.Load()
	require.NoError(t, err)

	assert.EqualValues(t, 2, doc["version"])

	public := doc["public"].(map[string]any)
	assert.Equal(t, "2026-02-04", public["date"])
	assert.Equal(t, "2026-02-04T10:00:00+08:00", public["updated"], "v1 timestamp becomes public.updated")

	templates := doc["templates"].(map[string]any)
	moyuren := templates["moyuren"].(map[string]any)
	assert.Equal(t, "moyuren_20260204_100000.jpg", moyuren["filename"])

	data := doc["template_data"].(map[string]any)["moyuren"].(map[string]any)
	assert.Contains(t, data, "news_list")

	// Root fields preserved verbatim.
	assert.Equal(t, "moyuren_20260204_100000.jpg", doc["filename"])
	assert.Equal(t, "星期三", doc["weekday"])
}

func TestLoad_UnknownVersionRejected(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"version": 3}`), 0o644))
	_, err := s.Load()
	assert.Error(t, err)
}

func TestLoad_GarbageRejected(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`[1,2,3]`), 0o644))
	_, err := s.Load()
	assert.Error(t, err)
}

func TestUpdate_WritesV2WithFlattenedFields(t *testing.T) {
	s := tempStore(t)
	err := s.Update(Entry{
		Template:  "moyuren",
		Filename:  "moyuren_20260204_100000.jpg",
		Updated:   "2026-02-04T10:00:00+08:00",
		UpdatedMS: 1770170400000,
		Public: map[string]any{
			"date":              "2026-02-04",
			"weekday":           "星期三",
			"is_crazy_thursday": false,
		},
		Data: map[string]any{"news_list": []any{}},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.EqualValues(t, 2, doc["version"])
	assert.Equal(t, "moyuren_20260204_100000.jpg", doc["filename"], "flattened root filename")
	assert.Equal(t, "2026-02-04", doc["date"])

	tpl := doc["templates"].(map[string]any)["moyuren"].(map[string]any)
	assert.Equal(t, doc["filename"], tpl["filename"], "root filename mirrors the active template")
}

func TestUpdate_PreservesOtherTemplates(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Update(Entry{
		Template: "moyuren", Filename: "moyuren_20260204_100000.jpg",
		Updated: "2026-02-04T10:00:00+08:00", UpdatedMS: 1,
		Public: map[string]any{"date": "2026-02-04"},
		Data:   map[string]any{"k": "v1"},
	}))
	require.NoError(t, s.Update(Entry{
		Template: "sidebar", Filename: "sidebar_20260204_110000.jpg",
		Updated: "2026-02-04T11:00:00+08:00", UpdatedMS: 2,
		Public: map[string]any{"date": "2026-02-04"},
		Data:   map[string]any{"k": "v2"},
	}))

	doc, err := s.Load()
	require.NoError(t, err)

	templates := doc["templates"].(map[string]any)
	assert.Contains(t, templates, "moyuren")
	assert.Contains(t, templates, "sidebar")
	assert.Equal(t, "moyuren_20260204_100000.jpg",
		templates["moyuren"].(map[string]any)["filename"])
	assert.Equal(t, "sidebar_20260204_110000.jpg", doc["filename"],
		"flattened fields follow the most recent writer")
}

func TestUpdate_MigratesV1BeforeMerging(t *testing.T) {
	s := tempStore(t)
	v1 := `{"date":"2026-02-03","timestamp":"2026-02-03T10:00:00+08:00","filename":"moyuren_20260203_100000.jpg"}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(v1), 0o644))

	require.NoError(t, s.Update(Entry{
		Template: "sidebar", Filename: "sidebar_20260204_110000.jpg",
		Updated: "2026-02-04T11:00:00+08:00", UpdatedMS: 2,
		Public: map[string]any{"date": "2026-02-04"},
	}))

	doc, err := s.Load()
	require.NoError(t, err)
	templates := doc["templates"].(map[string]any)
	assert.Equal(t, "moyuren_20260203_100000.jpg",
		templates["moyuren"].(map[string]any)["filename"],
		"legacy single-template entry survives an unrelated update")
}

func TestFreshFilename(t *testing.T) {
	s := tempStore(t)
	now := time.Date(2026, 2, 4, 10, 0, 30, 0, time.UTC)
	require.NoError(t, s.Update(Entry{
		Template: "moyuren", Filename: "moyuren_20260204_100000.jpg",
		Updated:   "2026-02-04T10:00:25+08:00",
		UpdatedMS: now.Add(-5 * time.Second).UnixMilli(),
		Public:    map[string]any{"date": "2026-02-04"},
	}))

	name, ok := s.FreshFilename("moyuren", 10*time.Second, now)
	assert.True(t, ok)
	assert.Equal(t, "moyuren_20260204_100000.jpg", name)

	// Outside the window.
	_, ok = s.FreshFilename("moyuren", 10*time.Second, now.Add(time.Minute))
	assert.False(t, ok)

	// Unknown template.
	_, ok = s.FreshFilename("sidebar", 10*time.Second, now)
	assert.False(t, ok)
}
