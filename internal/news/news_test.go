package news

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-data/skywatch/internal/httputil"
)

const articleBody = `{
	"articles": [
		{"url": "https://example.org/a", "title": "Exercises over the eastern Mediterranean",
		 "seendate": "20260314T093000Z", "domain": "example.org", "sourcecountry": "GR", "tone": "-2.5"},
		{"url": "https://example.org/b", "title": "Bad date", "seendate": "yesterday"},
		{"url": "", "title": "No URL", "seendate": "20260314T093000Z"}
	]
}`

func TestFetchParsesArticles(t *testing.T) {
	mock := httputil.NewMockClient().Queue(200, articleBody)
	c := NewClient(Config{BaseURL: "https://news.test/api"}, mock)

	out, err := c.Fetch(context.Background(), "eastmed", []string{"military", "aircraft"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	a := out[0]
	assert.Equal(t, "https://example.org/a", a.URL)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC), a.SeenDate)
	assert.Equal(t, "GR", a.SourceCountry)
	assert.InDelta(t, -2.5, a.Tone, 1e-9)
	assert.Equal(t, "eastmed", a.Region)

	require.Len(t, mock.Requests, 1)
	q := mock.Requests[0].URL.Query()
	assert.Contains(t, q.Get("query"), "eastmed")
	assert.Contains(t, q.Get("query"), "military")
	assert.Equal(t, "artlist", q.Get("mode"))
}

func TestFetchUpstreamError(t *testing.T) {
	mock := httputil.NewMockClient().Queue(503, "busy")
	c := NewClient(Config{BaseURL: "https://news.test/api"}, mock)

	_, err := c.Fetch(context.Background(), "eastmed", nil)
	assert.Error(t, err)
}

type memSink struct {
	saved []Article
}

func (m *memSink) SaveArticle(ctx context.Context, a Article) error {
	m.saved = append(m.saved, a)
	return nil
}

func TestIngestorSkipsFailedRegion(t *testing.T) {
	mock := httputil.NewMockClient().
		Queue(500, "boom").
		Queue(200, articleBody)
	sink := &memSink{}
	in := NewIngestor(NewClient(Config{BaseURL: "https://news.test/api"}, mock), sink, map[string][]string{
		"aegean": nil,
	})
	// Two runs: the first region fetch fails and is skipped, the second
	// succeeds and persists.
	require.NoError(t, in.Run(context.Background()))
	require.NoError(t, in.Run(context.Background()))
	require.Len(t, sink.saved, 1)
	assert.Equal(t, "aegean", sink.saved[0].Region)
}
