// Package arxiv provides a client for the arXiv Atom API.
//
// arXiv hosts preprints across physics, mathematics, computer science,
// and quantitative biology. This package implements the
// papersources.PaperSource interface using the export.arxiv.org
// query endpoint, which returns results as an Atom XML feed.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/questscholar/litpipeline/internal/domain"
	"github.com/questscholar/litpipeline/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is the default rate limit (3 requests per second).
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// preprintVenue is the venue label applied to all arXiv records,
	// since preprints carry no journal of record.
	preprintVenue = "arXiv Preprint"

	// sourceName is the human-readable name for this source.
	sourceName = "arXiv"
)

// arxivIDRegex extracts the arXiv ID from the full URL.
// Matches patterns like "http://arxiv.org/abs/2301.12345v1" or "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client implements the papersources.PaperSource interface for arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Ensure Client implements PaperSource interface.
var _ papersources.PaperSource = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries arXiv for papers matching the given parameters.
// The year range becomes a submittedDate filter in the search query,
// and results are sorted by submission date descending.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeArXiv, "building search URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeArXiv, "creating request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeArXiv, "executing request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewSourceError(domain.SourceTypeArXiv, "search request failed",
			domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil))
	}

	// Parse the Atom XML response (limit body to 10MB).
	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeArXiv, "decoding response", err)
	}

	records := make([]domain.PaperRecord, 0, len(feed.Entries))
	for i := range feed.Entries {
		rec, ok := c.entryToRecord(&feed.Entries[i])
		if !ok {
			continue
		}
		records = append(records, rec)
		if len(records) == params.MaxCount {
			break
		}
	}

	return &papersources.SearchResult{
		Records:        records,
		TotalResults:   feed.TotalResults,
		Source:         domain.SourceTypeArXiv,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the arXiv search API URL.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	query := url.Values{}
	searchQuery := "all:" + params.Subject + " AND " + buildDateFilter(params.StartYear, params.EndYear)
	query.Set("search_query", searchQuery)
	query.Set("max_results", strconv.Itoa(params.MaxCount))

	// Sort by submission date (newest first)
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// buildDateFilter constructs the arXiv submittedDate filter for a year range.
func buildDateFilter(startYear, endYear int) string {
	return fmt.Sprintf("submittedDate:[%d01010000 TO %d12312359]", startYear, endYear)
}

// entryToRecord converts an arXiv Atom entry to a paper record.
func (c *Client) entryToRecord(entry *Entry) (domain.PaperRecord, bool) {
	if entry == nil {
		return domain.PaperRecord{}, false
	}

	arxivID := extractArXivID(entry.ID)
	if arxivID == "" {
		return domain.PaperRecord{}, false
	}

	var year int
	if entry.Published != "" {
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			year = t.Year()
		}
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		authors = append(authors, name)
	}

	// arXiv titles and abstracts include raw newlines and indentation.
	title := normalizeWhitespace(entry.Title)
	abstract := normalizeWhitespace(entry.Summary)

	pdfURL := ""
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			pdfURL = link.Href
			break
		}
	}
	if pdfURL == "" {
		pdfURL = "http://arxiv.org/pdf/" + arxivID
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, cat := range entry.Categories {
		if cat.Term != "" {
			categories = append(categories, cat.Term)
		}
	}

	raw := map[string]interface{}{
		"arxiv_id":   arxivID,
		"categories": categories,
		"pdf_url":    pdfURL,
	}
	if entry.JournalRef != "" {
		raw["journal_ref"] = strings.TrimSpace(entry.JournalRef)
	}
	if entry.Comment != "" {
		raw["comment"] = strings.TrimSpace(entry.Comment)
	}
	if entry.PrimaryCategory.Term != "" {
		raw["primary_category"] = entry.PrimaryCategory.Term
	}

	rec := domain.PaperRecord{
		Title:   title,
		DOI:     strings.TrimSpace(entry.DOI),
		ArXivID: arxivID,
		Source:  domain.SourceTypeArXiv,
		Authors: authors,
		Year:    year,
		Venue:   preprintVenue,
		Raw:     raw,
	}
	if abstract != "" {
		rec.Abstract = &abstract
	}

	if rec.Validate() != nil {
		return domain.PaperRecord{}, false
	}
	return rec, true
}

// extractArXivID extracts the arXiv ID from the full entry URL.
// Input: "http://arxiv.org/abs/2301.12345v1" yields "2301.12345".
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// normalizeWhitespace trims and collapses multiple whitespace characters.
func normalizeWhitespace(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	return strings.Join(fields, " ")
}
