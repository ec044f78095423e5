package sources

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"moyuren/internal/metrics"
)

// KFC fetches crazy-Thursday copy. The Thursday gate itself lives in the
// cache layer (cache.ThursdayOnly wraps Fetch); this adapter only knows how
// to talk to the copy API and tolerate its many response shapes.
type KFC struct {
	client *Client
	url    string
}

// NewKFC builds the crazy-Thursday adapter.
func NewKFC(client *Client, endpoint string) *KFC {
	return &KFC{client: client, url: endpoint}
}

// Fetch returns the day's copy as a plain string, or nil on failure.
// Accepted shapes: {"data":{"kfc":s}}, {"data":s}, {"text":s}, or a bare
// string body. Literal \n sequences become real newlines.
func (k *KFC) Fetch(ctx context.Context) (any, error) {
	raw, err := k.client.GetBody(ctx, k.url, nil)
	if err != nil {
		metrics.SourceFailures.WithLabelValues("kfc").Inc()
		log.Warn().Err(err).Msg("kfc fetch failed")
		return nil, nil
	}

	text := extractKFCText(raw)
	if text == "" {
		return nil, nil
	}
	return text, nil
}

func extractKFCText(raw []byte) string {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		// Not JSON: treat the body as the copy itself.
		return cleanKFCText(string(raw))
	}

	switch v := probe.(type) {
	case string:
		return cleanKFCText(v)
	case map[string]any:
		if data, ok := v["data"]; ok {
			switch d := data.(type) {
			case string:
				return cleanKFCText(d)
			case map[string]any:
				if s, ok := d["kfc"].(string); ok {
					return cleanKFCText(s)
				}
			}
		}
		if s, ok := v["text"].(string); ok {
			return cleanKFCText(s)
		}
	}
	return ""
}

func cleanKFCText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `\n`, "\n"))
}
