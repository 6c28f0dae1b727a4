package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/questscholar/litpipeline/internal/domain"
	"github.com/questscholar/litpipeline/internal/papersources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit for unauthenticated requests.
	// With an API key this can be increased.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxResultsCap is the API's maximum page size.
	MaxResultsCap = 100

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields to request from the API.
	paperFields = "paperId,externalIds,title,abstract,year,venue,journal,authors,citationCount,isOpenAccess,openAccessPdf"

	// sourceName is the human-readable name for this source.
	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	// Authenticated requests have higher rate limits.
	APIKey string

	// Timeout is the HTTP request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to DefaultRateLimit.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed. Defaults to DefaultBurstSize.
	BurstSize int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

func (cfg *Config) applyDefaults() {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
}

// Client implements the papersources.PaperSource interface for Semantic Scholar.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

// Compile-time check that Client implements papersources.PaperSource.
var _ papersources.PaperSource = (*Client)(nil)

// NewClient creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, a new one is created with the configuration settings.
func NewClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
		})
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Search queries Semantic Scholar for papers matching the given parameters.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	start := time.Now()

	if err := params.Validate(); err != nil {
		return nil, err
	}

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeSemanticScholar, "building search URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeSemanticScholar, "creating request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeSemanticScholar, "executing request", err)
	}
	defer resp.Body.Close()

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeSemanticScholar, "search failed", err)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeSemanticScholar, "decoding response", err)
	}

	records := c.convertToRecords(searchResp.Data, params.MaxCount)

	return &papersources.SearchResult{
		Records:        records,
		TotalResults:   searchResp.Total,
		Source:         domain.SourceTypeSemanticScholar,
		SearchDuration: time.Since(start),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the search API URL with query parameters.
// Semantic Scholar filters by year range with a "start-end" value.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("paper", "search")

	limit := params.MaxCount
	if limit > MaxResultsCap {
		limit = MaxResultsCap
	}

	q := searchURL.Query()
	q.Set("query", params.Subject)
	q.Set("fields", paperFields)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("year", fmt.Sprintf("%d-%d", params.StartYear, params.EndYear))

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// handleErrorResponse checks for API errors and returns appropriate error types.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Limit error body to 1MB.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		if message == "" {
			message = string(body)
		}
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
	}

	return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
}

// convertToRecords converts API paper results to paper records, dropping
// entries that fail the record invariant and capping at max.
func (c *Client) convertToRecords(results []PaperResult, max int) []domain.PaperRecord {
	records := make([]domain.PaperRecord, 0, len(results))
	for _, result := range results {
		rec := c.convertToRecord(result)
		if rec.Validate() != nil {
			continue
		}
		records = append(records, rec)
		if len(records) == max {
			break
		}
	}
	return records
}

// convertToRecord converts a single API paper result to a paper record.
func (c *Client) convertToRecord(result PaperResult) domain.PaperRecord {
	rec := domain.PaperRecord{
		Title:  result.Title,
		Source: domain.SourceTypeSemanticScholar,
		Year:   result.Year,
		Venue:  result.Venue,
		Raw: map[string]interface{}{
			"semantic_scholar_id": result.PaperID,
		},
	}

	if result.Abstract != "" {
		abstract := result.Abstract
		rec.Abstract = &abstract
	}
	if result.CitationCount != nil {
		count := *result.CitationCount
		rec.CitationCount = &count
	}
	if result.Journal != nil && result.Journal.Name != "" && rec.Venue == "" {
		rec.Venue = result.Journal.Name
	}
	if result.OpenAccessPDF != nil && result.OpenAccessPDF.URL != "" {
		rec.Raw["pdf_url"] = result.OpenAccessPDF.URL
	}
	if result.ExternalIDs != nil {
		rec.DOI = result.ExternalIDs.DOI
		rec.ArXivID = result.ExternalIDs.ArXiv
	}

	rec.Authors = make([]string, 0, len(result.Authors))
	for _, a := range result.Authors {
		if a.Name != "" {
			rec.Authors = append(rec.Authors, a.Name)
		}
	}

	return rec
}
