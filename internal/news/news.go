// Package news pulls open-source news articles for the monitored regions
// and persists them for alert correlation.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/skywatch-data/skywatch/internal/monitoring"
)

// seenDateLayout is the compact timestamp the article API emits.
const seenDateLayout = "20060102T150405Z"

// Article is one fetched news record.
type Article struct {
	URL           string
	Title         string
	SeenDate      time.Time
	Domain        string
	SourceCountry string
	Tone          float64
	Region        string // query region the article was fetched for
}

// Doer is the minimal HTTP surface the client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the article API settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRecords int
}

// Client queries the article API per region.
type Client struct {
	cfg  Config
	http Doer
}

// NewClient builds a Client. A nil doer uses a timeout-bounded http.Client.
func NewClient(cfg Config, doer Doer) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 50
	}
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: doer}
}

type articleEnvelope struct {
	Articles []struct {
		URL           string `json:"url"`
		Title         string `json:"title"`
		SeenDate      string `json:"seendate"`
		Domain        string `json:"domain"`
		SourceCountry string `json:"sourcecountry"`
		Tone          string `json:"tone"`
	} `json:"articles"`
}

// Fetch queries articles matching the region query terms. Malformed
// records are logged and skipped, never failing the batch.
func (c *Client) Fetch(ctx context.Context, region string, terms []string) ([]Article, error) {
	query := region
	for _, t := range terms {
		query += " " + t
	}

	u := fmt.Sprintf("%s?query=%s&mode=artlist&format=json&maxrecords=%d",
		c.cfg.BaseURL, url.QueryEscape(query), c.cfg.MaxRecords)

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news fetch %s: %w", region, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("news fetch %s: %w", region, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news fetch %s: status %d", region, resp.StatusCode)
	}

	var envelope articleEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("news fetch %s: bad payload: %w", region, err)
	}

	out := make([]Article, 0, len(envelope.Articles))
	for i, raw := range envelope.Articles {
		if raw.URL == "" || raw.Title == "" {
			continue
		}
		seen, err := time.Parse(seenDateLayout, raw.SeenDate)
		if err != nil {
			monitoring.Logf("news: article %d bad seendate %q, skipping: %v", i, raw.SeenDate, err)
			continue
		}
		var tone float64
		if raw.Tone != "" {
			fmt.Sscanf(raw.Tone, "%f", &tone)
		}
		out = append(out, Article{
			URL:           raw.URL,
			Title:         raw.Title,
			SeenDate:      seen,
			Domain:        raw.Domain,
			SourceCountry: raw.SourceCountry,
			Tone:          tone,
			Region:        region,
		})
	}
	return out, nil
}

// Sink persists fetched articles.
type Sink interface {
	SaveArticle(ctx context.Context, a Article) error
}

// Ingestor fetches each configured region and persists the results.
type Ingestor struct {
	client *Client
	sink   Sink
	// Regions maps region name to extra query terms.
	Regions map[string][]string
}

// NewIngestor builds an Ingestor.
func NewIngestor(client *Client, sink Sink, regions map[string][]string) *Ingestor {
	return &Ingestor{client: client, sink: sink, Regions: regions}
}

// Run fetches every region once. A failed region is logged and skipped;
// only persistence errors propagate.
func (in *Ingestor) Run(ctx context.Context) error {
	for region, terms := range in.Regions {
		articles, err := in.client.Fetch(ctx, region, terms)
		if err != nil {
			monitoring.Logf("news: region %s fetch failed: %v", region, err)
			continue
		}
		for _, a := range articles {
			if err := in.sink.SaveArticle(ctx, a); err != nil {
				return fmt.Errorf("save article %s: %w", a.URL, err)
			}
		}
	}
	return nil
}
