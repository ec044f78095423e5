// Package state owns the versioned state file that publishes generation
// results to the HTTP readers. The on-disk document is schema v2; legacy v1
// files (single implicit template, everything at root) are migrated on load
// under the template name "moyuren". Writers additionally flatten the active
// template's fields back to the root for old readers.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"moyuren/internal/cache"
	"moyuren/internal/errcode"
)

// LegacyTemplate is the template name v1 documents migrate under.
const LegacyTemplate = "moyuren"

// publicKeys are the fields shared by all templates, promoted into "public"
// during migration and mirrored at root on write.
var publicKeys = []string{
	"date", "updated", "updated_at_ms", "weekday", "lunar_date",
	"fun_content", "is_crazy_thursday", "kfc_content",
}

// templateKeys are the per-template fields.
var templateKeys = []string{"filename", "updated", "updated_at_ms"}

// Store reads and writes the state file. Writes must happen under the
// generation lock; the store itself only guarantees atomic publication.
type Store struct {
	path string
}

// NewStore builds a store for the state file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Load reads the state file and returns it migrated to v2. A missing file
// yields (nil, nil). Unparseable content or an unknown version yields a
// STORAGE read failure.
func (s *Store) Load() (map[string]any, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errcode.Wrap(errcode.StorageReadFailed, s.path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errcode.Wrap(errcode.StorageReadFailed, "state file is not a JSON object", err)
	}

	switch version(doc) {
	case 0, 1:
		return migrateV1(doc), nil
	case 2:
		return doc, nil
	default:
		return nil, errcode.New(errcode.StorageBadVersion,
			fmt.Sprintf("unsupported state version %v", doc["version"]))
	}
}

// FreshFilename reports the template's published filename when the state was
// updated within the given window. Used by the orchestrator's post-lock
// recheck.
func (s *Store) FreshFilename(template string, within time.Duration, now time.Time) (string, bool) {
	doc, err := s.Load()
	if err != nil || doc == nil {
		return "", false
	}

	updatedAt, ok := numeric(lookup(doc, "public", "updated_at_ms"))
	if !ok {
		updatedAt, ok = numeric(doc["updated_at_ms"])
	}
	if !ok {
		return "", false
	}
	age := now.Sub(time.UnixMilli(int64(updatedAt)))
	if age < 0 || age > within {
		return "", false
	}

	filename, _ := lookup(doc, "templates", template, "filename").(string)
	if filename == "" {
		return "", false
	}
	return filename, true
}

// Entry is what one generation publishes for a template.
type Entry struct {
	Template  string
	Filename  string
	Updated   string // display-timezone timestamp
	UpdatedMS int64
	Public    map[string]any // shared fields (date, weekday, lunar_date, …)
	Data      map[string]any // template-specific render context
}

// Update merges one generation result into the state file and publishes it
// atomically. Entries of other templates survive untouched.
func (s *Store) Update(e Entry) error {
	prior, err := s.Load()
	if err != nil {
		// A corrupt state file must not wedge generation forever; start over.
		prior = nil
	}

	templates := map[string]any{}
	templateData := map[string]any{}
	if prior != nil {
		if t, ok := prior["templates"].(map[string]any); ok {
			templates = t
		}
		if td, ok := prior["template_data"].(map[string]any); ok {
			templateData = td
		}
	}

	tplEntry := map[string]any{
		"filename":      e.Filename,
		"updated":       e.Updated,
		"updated_at_ms": e.UpdatedMS,
	}
	templates[e.Template] = tplEntry
	templateData[e.Template] = e.Data

	public := map[string]any{
		"updated":       e.Updated,
		"updated_at_ms": e.UpdatedMS,
	}
	for k, v := range e.Public {
		public[k] = v
	}

	doc := map[string]any{
		"version":       2,
		"public":        public,
		"templates":     templates,
		"template_data": templateData,
	}
	// Flattened compatibility copy of public ∪ templates[active].
	for k, v := range public {
		doc[k] = v
	}
	for k, v := range tplEntry {
		doc[k] = v
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errcode.Wrap(errcode.StorageWriteFailed, "encode state", err)
	}
	if err := cache.WriteFileAtomic(s.path, raw, 0o644); err != nil {
		return errcode.Wrap(errcode.StorageWriteFailed, s.path, err)
	}
	return nil
}

// migrateV1 lifts a legacy flat document into the v2 shape. The original
// root fields are preserved verbatim alongside the structured copy.
func migrateV1(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc)+4)
	for k, v := range doc {
		out[k] = v
	}
	out["version"] = 2

	public := map[string]any{}
	for _, k := range publicKeys {
		if v, ok := doc[k]; ok {
			public[k] = v
		}
	}
	// v1 used "timestamp" for what v2 calls "updated".
	if _, ok := public["updated"]; !ok {
		if ts, ok := doc["timestamp"]; ok {
			public["updated"] = ts
		}
	}

	tplEntry := map[string]any{}
	for _, k := range templateKeys {
		if v, ok := doc[k]; ok {
			tplEntry[k] = v
		}
	}
	if _, ok := tplEntry["updated"]; !ok {
		if ts, ok := doc["timestamp"]; ok {
			tplEntry["updated"] = ts
		}
	}

	data := map[string]any{}
	for k, v := range doc {
		if k == "version" || k == "timestamp" || contains(publicKeys, k) || contains(templateKeys, k) {
			continue
		}
		data[k] = v
	}

	out["public"] = public
	out["templates"] = map[string]any{LegacyTemplate: tplEntry}
	out["template_data"] = map[string]any{LegacyTemplate: data}
	return out
}

func version(doc map[string]any) int {
	v, ok := numeric(doc["version"])
	if !ok {
		return 0
	}
	return int(v)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func lookup(doc map[string]any, keys ...string) any {
	var cur any = doc
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
