package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-data/skywatch/internal/httputil"
)

func TestDisabledShortCircuits(t *testing.T) {
	c := NewClient(Config{}, httputil.NewMockClient())

	_, err := c.Generate(context.Background(), "summarize", "")
	assert.ErrorIs(t, err, ErrProviderDisabled)

	_, err = c.EmbedBatch(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrProviderDisabled)
}

func TestGenerate(t *testing.T) {
	mock := httputil.NewMockClient().Queue(200,
		`{"candidates":[{"content":{"parts":[{"text":"two tankers on station"}]}}]}`)
	c := NewClient(Config{GenerateURL: "https://llm.test/generate", APIKey: "k", Temperature: 0.2}, mock)

	out, err := c.Generate(context.Background(), "summarize the picture", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "two tankers on station", out)

	require.Len(t, mock.Requests, 1)
	req := mock.Requests[0]
	assert.Equal(t, "k", req.Header.Get("x-goog-api-key"))

	var body struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		GenerationConfig struct {
			Temperature      float64 `json:"temperature"`
			MaxOutputTokens  int     `json:"maxOutputTokens"`
			ResponseMimeType string  `json:"responseMimeType"`
		} `json:"generationConfig"`
	}
	require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
	require.Len(t, body.Contents, 1)
	assert.Equal(t, "summarize the picture", body.Contents[0].Parts[0].Text)
	assert.Equal(t, 0.2, body.GenerationConfig.Temperature)
	assert.Equal(t, 1024, body.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, "text/plain", body.GenerationConfig.ResponseMimeType)
}

func TestEmbedBatch(t *testing.T) {
	mock := httputil.NewMockClient().Queue(200,
		`{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`)
	c := NewClient(Config{EmbedURL: "https://llm.test/embed"}, mock)

	out, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float64{0.1, 0.2}, out[0])
	assert.Equal(t, []float64{0.3, 0.4}, out[1])
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	mock := httputil.NewMockClient().Queue(200, `{"embeddings":[{"values":[0.1]}]}`)
	c := NewClient(Config{EmbedURL: "https://llm.test/embed"}, mock)

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := NewClient(Config{EmbedURL: "https://llm.test/embed"}, httputil.NewMockClient())
	out, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
