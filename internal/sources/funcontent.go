package sources

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"moyuren/internal/metrics"
)

// FunEndpoint describes one fun-content upstream. DataPath is a dot path
// into the response object ("data.content", "items.0.text").
type FunEndpoint struct {
	Name         string
	URL          string
	DataPath     string
	DisplayTitle string
}

// DefaultFunContent is served when every endpoint comes back empty.
var DefaultFunContent = map[string]any{
	"title":   "🐟 摸鱼小贴士",
	"content": "摸鱼是一门艺术：劳逸结合，今天也要适度休息哦。",
}

// FunContent rotates through a pool of content endpoints. The try order is a
// deterministic permutation seeded by the business date, so every instance
// agrees on the day's ordering without coordination.
type FunContent struct {
	client    *Client
	endpoints []FunEndpoint
	today     func() time.Time
}

// NewFunContent builds the fun-content adapter.
func NewFunContent(client *Client, endpoints []FunEndpoint, today func() time.Time) *FunContent {
	return &FunContent{client: client, endpoints: endpoints, today: today}
}

// Fetch tries the day's permutation of endpoints and returns
// {title, content} for the first one yielding a non-empty string at its data
// path. Falls back to DefaultFunContent.
func (f *FunContent) Fetch(ctx context.Context) (any, error) {
	for _, idx := range f.order() {
		ep := f.endpoints[idx]
		obj, err := f.client.GetJSON(ctx, ep.URL, nil)
		if err != nil {
			metrics.SourceFailures.WithLabelValues("fun_content").Inc()
			log.Warn().Str("endpoint", ep.Name).Err(err).Msg("fun content endpoint failed")
			continue
		}
		content, ok := DotPath(obj, ep.DataPath).(string)
		if !ok || strings.TrimSpace(content) == "" {
			continue
		}
		return map[string]any{
			"title":   ep.DisplayTitle,
			"content": strings.TrimSpace(content),
		}, nil
	}
	return DefaultFunContent, nil
}

// order permutes endpoint indices with a seed derived from today's date as
// a YYYYMMDD integer.
func (f *FunContent) order() []int {
	seed, _ := strconv.ParseInt(f.today().Format("20060102"), 10, 64)
	return rand.New(rand.NewSource(seed)).Perm(len(f.endpoints))
}

// DotPath walks a decoded JSON value by dot-separated keys. Numeric segments
// index into arrays. Returns nil when any hop is missing.
func DotPath(v any, path string) any {
	if path == "" {
		return v
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}
