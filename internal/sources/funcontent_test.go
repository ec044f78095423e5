package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDotPath(t *testing.T) {
	doc := map[string]any{
		"data": map[string]any{
			"content": "hello",
			"items":   []any{map[string]any{"text": "first"}, "second"},
		},
	}

	tests := []struct {
		path string
		want any
	}{
		{path: "data.content", want: "hello"},
		{path: "data.items.0.text", want: "first"},
		{path: "data.items.1", want: "second"},
		{path: "data.missing", want: nil},
		{path: "data.items.5", want: nil},
		{path: "data.content.deeper", want: nil},
		{path: "", want: doc},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DotPath(doc, tt.path), "path %q", tt.path)
	}
}

func TestFunContent_FirstNonEmptyWins(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"content":"   "}}`))
	}))
	defer empty.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"content":"a useful tip"}}`))
	}))
	defer good.Close()

	today := func() time.Time { return time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC) }
	f := NewFunContent(NewClient("fun", time.Second), []FunEndpoint{
		{Name: "empty", URL: empty.URL, DataPath: "data.content", DisplayTitle: "空"},
		{Name: "good", URL: good.URL, DataPath: "data.content", DisplayTitle: "📜 历史上的今天"},
	}, today)

	got, err := f.Fetch(context.Background())
	require.NoError(t, err)
	m := got.(map[string]any)
	assert.Equal(t, "📜 历史上的今天", m["title"])
	assert.Equal(t, "a useful tip", m["content"])
}

func TestFunContent_OrderIsDeterministicPerDate(t *testing.T) {
	f := &FunContent{
		endpoints: make([]FunEndpoint, 8),
		today:     func() time.Time { return time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC) },
	}
	first := f.order()
	second := f.order()
	assert.Equal(t, first, second, "same date must yield the same permutation")

	f.today = func() time.Time { return time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC) }
	// Different dates will almost always permute differently; at minimum the
	// permutation stays a valid index set.
	third := f.order()
	assert.ElementsMatch(t, first, third)
}

func TestFunContent_DefaultWhenAllFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	f := NewFunContent(NewClient("fun", time.Second), []FunEndpoint{
		{Name: "down", URL: down.URL, DataPath: "data.content"},
	}, func() time.Time { return time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC) })

	got, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultFunContent, got)
}
