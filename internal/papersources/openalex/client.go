package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/questscholar/litpipeline/internal/domain"
	"github.com/questscholar/litpipeline/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxResultsCap is the maximum per_page value the OpenAlex API accepts.
	MaxResultsCap = 200

	// doiPrefix is the URL prefix that OpenAlex uses for DOIs.
	doiPrefix = "https://doi.org/"

	// openAlexIDPrefix is the URL prefix for OpenAlex IDs.
	openAlexIDPrefix = "https://openalex.org/"

	// sourceName is the human-readable name for this source.
	sourceName = "OpenAlex"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	// Defaults to https://api.openalex.org
	BaseURL string

	// Email is the contact email for the polite pool.
	// Providing an email grants access to higher rate limits.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	// Timeout is the request timeout.
	// Defaults to 30 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to 10 req/sec.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to 10.
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

// Client implements the papersources.PaperSource interface for OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Ensure Client implements PaperSource interface.
var _ papersources.PaperSource = (*Client)(nil)

// New creates a new OpenAlex client with the given configuration.
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

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries OpenAlex for papers matching the given parameters.
// The year range is expressed as a publication_year filter.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeOpenAlex, "building search URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeOpenAlex, "creating request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeOpenAlex, "executing request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewSourceError(domain.SourceTypeOpenAlex, "search request failed",
			domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil))
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, domain.NewSourceError(domain.SourceTypeOpenAlex, "decoding response", err)
	}

	records := make([]domain.PaperRecord, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		rec, ok := c.workToRecord(&searchResp.Results[i])
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
		TotalResults:   searchResp.Meta.Count,
		Source:         domain.SourceTypeOpenAlex,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = "/works"

	query := url.Values{}
	query.Set("search", params.Subject)
	query.Set("filter", fmt.Sprintf("publication_year:%d-%d", params.StartYear, params.EndYear))

	perPage := params.MaxCount
	if perPage > MaxResultsCap {
		perPage = MaxResultsCap
	}
	query.Set("per_page", strconv.Itoa(perPage))

	// Polite pool registration.
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// workToRecord converts an OpenAlex Work to a paper record.
func (c *Client) workToRecord(work *Work) (domain.PaperRecord, bool) {
	if work == nil {
		return domain.PaperRecord{}, false
	}

	doi := normalizeDOI(work.DOI)
	if doi == "" && work.IDs.DOI != "" {
		doi = normalizeDOI(work.IDs.DOI)
	}

	openAlexID := normalizeOpenAlexID(work.ID)
	if openAlexID == "" && work.IDs.OpenAlex != "" {
		openAlexID = normalizeOpenAlexID(work.IDs.OpenAlex)
	}

	// display_name is usually cleaner than title.
	title := work.DisplayName
	if title == "" {
		title = work.Title
	}

	authors := make([]string, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		name := strings.TrimSpace(authorship.Author.DisplayName)
		if name == "" {
			continue
		}
		authors = append(authors, name)
	}

	var venue string
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		venue = work.PrimaryLocation.Source.DisplayName
	}

	var pdfURL string
	if work.OpenAccess != nil && work.OpenAccess.OAURL != "" {
		pdfURL = work.OpenAccess.OAURL
	} else if work.PrimaryLocation != nil && work.PrimaryLocation.PDFURL != "" {
		pdfURL = work.PrimaryLocation.PDFURL
	}

	raw := map[string]interface{}{
		"openalex_id": openAlexID,
		"type":        work.Type,
	}
	if pdfURL != "" {
		raw["pdf_url"] = pdfURL
	}
	if work.IDs.PMID != "" {
		raw["pmid"] = normalizePMID(work.IDs.PMID)
	}

	citations := work.CitedByCount
	rec := domain.PaperRecord{
		Title:         title,
		DOI:           doi,
		Source:        domain.SourceTypeOpenAlex,
		Authors:       authors,
		Year:          work.PublicationYear,
		Venue:         venue,
		CitationCount: &citations,
		Raw:           raw,
	}

	if abstract := reconstructAbstract(work.AbstractInvertedIndex); abstract != "" {
		rec.Abstract = &abstract
	}

	if rec.Validate() != nil {
		return domain.PaperRecord{}, false
	}
	return rec, true
}

// normalizeDOI strips the https://doi.org/ prefix from DOIs and returns lowercase.
func normalizeDOI(doi string) string {
	if doi == "" {
		return ""
	}
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, doiPrefix)
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	if id == "" {
		return ""
	}
	id = strings.TrimPrefix(id, openAlexIDPrefix)
	return strings.TrimSpace(id)
}

// normalizePMID strips any URL prefixes from PubMed IDs.
func normalizePMID(pmid string) string {
	if pmid == "" {
		return ""
	}
	pmid = strings.TrimPrefix(pmid, "https://pubmed.ncbi.nlm.nih.gov/")
	return strings.TrimSpace(pmid)
}

// reconstructAbstract reconstructs the abstract text from OpenAlex's inverted index format.
// OpenAlex stores abstracts as inverted indices mapping words to their positions.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	// Guard against malicious payloads with excessive position entries.
	if totalPairs > maxAbstractWords {
		return ""
	}
	pairs := make([]posWord, 0, totalPairs)

	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	// Pre-size the builder assuming an average word length of 6
	// characters plus a space separator.
	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}

	return builder.String()
}
