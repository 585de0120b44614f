// Web evidence retrieval.
//
// DESIGN: the checker only needs a flat list of results to cite, so
// Client is a one-method interface and Brave is its production
// implementation against the Brave Search REST API. Failures come
// back as the same structured *external.CallError the model boundary
// produces, which lets the queue and classifier treat a rate-limited
// search exactly like a rate-limited model call.
package search

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/verascope/verascope/external"
)

const (
	defaultEndpoint   = "https://api.search.brave.com/res/v1/web/search"
	defaultMaxResults = 5
	defaultTimeout    = 10 * time.Second

	// Search responses are small; anything larger is misbehavior.
	maxBodySize = 2 * 1024 * 1024
)

// Result is one piece of web evidence.
type Result struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Domain      string `json:"domain"`
	Date        string `json:"date,omitempty"`
}

// Client fetches evidence for a query.
type Client interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Config controls the Brave client. Zero fields get defaults.
type Config struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Brave calls the Brave Search API.
type Brave struct {
	cfg    Config
	client *http.Client
}

var _ Client = (*Brave)(nil)

func NewBrave(cfg Config) *Brave {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Brave{cfg: cfg, client: client}
}

func (b *Brave) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search: empty query")
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	params := url.Values{
		"q":     {query},
		"count": {strconv.Itoa(b.cfg.MaxResults)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.cfg.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, external.ReadError("brave", resp, body)
	}

	return parseResults(body), nil
}

// parseResults flattens the web.results array. Brave highlights terms
// with <strong> markup inside descriptions; that gets stripped so
// prompts stay plain text.
func parseResults(body []byte) []Result {
	var out []Result
	gjson.GetBytes(body, "web.results").ForEach(func(_, v gjson.Result) bool {
		r := Result{
			Title:       cleanText(v.Get("title").String()),
			Description: cleanText(v.Get("description").String()),
			URL:         v.Get("url").String(),
			Domain:      v.Get("meta_url.hostname").String(),
			Date:        v.Get("page_age").String(),
		}
		if r.Domain == "" {
			r.Domain = hostOf(r.URL)
		}
		if r.Date == "" {
			r.Date = v.Get("age").String()
		}
		if r.Title == "" && r.URL == "" {
			return true
		}
		out = append(out, r)
		return true
	})
	return out
}

var tagStripper = strings.NewReplacer("<strong>", "", "</strong>", "", "<em>", "", "</em>", "")

func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagStripper.Replace(s)))
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// FormatEvidence renders results as the numbered block embedded in
// scored prompts. An empty slice renders as an empty string, which
// the prompt builder treats as "no evidence".
func FormatEvidence(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, r.Title)
		if source := sourceLabel(r); source != "" {
			fmt.Fprintf(&b, " (%s)", source)
		}
		if r.Description != "" {
			b.WriteString("\n   ")
			b.WriteString(r.Description)
		}
		if r.URL != "" {
			b.WriteString("\n   ")
			b.WriteString(r.URL)
		}
	}
	return b.String()
}

func sourceLabel(r Result) string {
	switch {
	case r.Domain != "" && r.Date != "":
		return r.Domain + ", " + r.Date
	case r.Domain != "":
		return r.Domain
	default:
		return r.Date
	}
}
