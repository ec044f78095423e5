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

func TestExtractKFCText_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "nested_data_kfc", body: `{"data":{"kfc":"疯狂星期四"}}`, want: "疯狂星期四"},
		{name: "data_string", body: `{"data":"V我50"}`, want: "V我50"},
		{name: "text_field", body: `{"text":"今天是星期四"}`, want: "今天是星期四"},
		{name: "json_string", body: `"直接字符串"`, want: "直接字符串"},
		{name: "bare_text", body: "plain body", want: "plain body"},
		{name: "escaped_newlines", body: `{"text":"第一行\\n第二行"}`, want: "第一行\n第二行"},
		{name: "whitespace_trimmed", body: `{"text":"  空格  "}`, want: "空格"},
		{name: "unusable_object", body: `{"other":1}`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractKFCText([]byte(tt.body)))
		})
	}
}

func TestKFC_FetchFailureReturnsNil(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	k := NewKFC(NewClient("kfc", time.Second), down.URL)
	got, err := k.Fetch(context.Background())
	require.NoError(t, err, "transport failures must not propagate")
	assert.Nil(t, got)
}

func TestKFC_FetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"kfc":"v50"}}`))
	}))
	defer srv.Close()

	k := NewKFC(NewClient("kfc", time.Second), srv.URL)
	got, err := k.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v50", got)
}
