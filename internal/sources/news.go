package sources

import (
	"context"
	"net/url"

	"github.com/rs/zerolog/log"

	"moyuren/internal/metrics"
)

// News fetches the daily news digest. The response object is opaque here;
// the context computer destructures whatever shape the upstream returns.
type News struct {
	client *Client
	url    string
	params url.Values
}

// NewNews builds the news adapter for one configured endpoint.
func NewNews(client *Client, endpoint string, params map[string]string) *News {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return &News{client: client, url: endpoint, params: values}
}

// Fetch returns the upstream JSON object, or nil on any transport failure.
func (n *News) Fetch(ctx context.Context) (any, error) {
	obj, err := n.client.GetJSON(ctx, n.url, n.params)
	if err != nil {
		metrics.SourceFailures.WithLabelValues("news").Inc()
		log.Warn().Err(err).Msg("news fetch failed")
		return nil, nil
	}
	return obj, nil
}
