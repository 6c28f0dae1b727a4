package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/questscholar/litpipeline/internal/domain"
	"github.com/questscholar/litpipeline/internal/papersources"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// sourceName is the human-readable name for this source.
	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Timeout is the request timeout. Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit (3 req/sec) if zero.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults applies default values to the config.
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

// Client implements the papersources.PaperSource interface for PubMed.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Compile-time check that Client implements PaperSource.
var _ papersources.PaperSource = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}

	return &Client{
		config:     cfg,
		httpClient: papersources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries PubMed for papers matching the given parameters.
// It performs the E-utilities two-step search:
//  1. esearch.fcgi retrieves PMIDs matching the query
//  2. efetch.fcgi retrieves full article metadata for the PMIDs
//
// The year range is expressed in the term itself, in the form
// "(subject) AND (start[pdat] : end[pdat])".
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()

	searchResult, err := c.esearch(ctx, params)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceTypePubMed, "esearch failed", err)
	}

	// Phrase-not-found is an empty result, not a failure.
	if searchResult.ErrorList != nil && len(searchResult.ErrorList.PhraseNotFound) > 0 {
		return &papersources.SearchResult{
			Source:         domain.SourceTypePubMed,
			SearchDuration: time.Since(startTime),
		}, nil
	}

	if len(searchResult.IDList.IDs) == 0 {
		return &papersources.SearchResult{
			TotalResults:   searchResult.Count,
			Source:         domain.SourceTypePubMed,
			SearchDuration: time.Since(startTime),
		}, nil
	}

	articles, err := c.efetch(ctx, searchResult.IDList.IDs)
	if err != nil {
		return nil, domain.NewSourceError(domain.SourceTypePubMed, "efetch failed", err)
	}

	records := make([]domain.PaperRecord, 0, len(articles.Articles))
	for _, article := range articles.Articles {
		rec := c.articleToRecord(article)
		if rec.Validate() != nil {
			continue
		}
		records = append(records, rec)
		if len(records) == params.MaxCount {
			break
		}
	}

	return &papersources.SearchResult{
		Records:        records,
		TotalResults:   searchResult.Count,
		Source:         domain.SourceTypePubMed,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// BuildTerm constructs the esearch term with a publication date range.
func BuildTerm(subject string, startYear, endYear int) string {
	return fmt.Sprintf("(%s) AND (%d[pdat] : %d[pdat])", subject, startYear, endYear)
}

// esearch performs a search query and returns matching PMIDs.
func (c *Client) esearch(ctx context.Context, params papersources.SearchParams) (*ESearchResult, error) {
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("term", BuildTerm(params.Subject, params.StartYear, params.EndYear))
	q.Set("retmode", "xml")
	q.Set("retmax", strconv.Itoa(params.MaxCount))
	q.Set("datetype", "pdat")
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	var result ESearchResult
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// efetch retrieves full article metadata for the given PMIDs.
func (c *Client) efetch(ctx context.Context, pmids []string) (*PubmedArticleSet, error) {
	if len(pmids) == 0 {
		return &PubmedArticleSet{}, nil
	}

	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	var result PubmedArticleSet
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// getXML executes a GET request and decodes the XML response into out.
// Bodies are limited to 10MB to prevent resource exhaustion.
func (c *Client) getXML(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse XML response: %w", err)
	}
	return nil
}

// articleToRecord converts a PubmedArticle to a paper record.
func (c *Client) articleToRecord(article PubmedArticle) domain.PaperRecord {
	citation := article.MedlineCitation
	pubmedData := article.PubmedData

	doi := extractDOI(citation.Article, pubmedData)
	year := extractPublicationYear(citation.Article)

	journal := citation.Article.Journal.Title
	if journal == "" {
		journal = citation.Article.Journal.ISOAbbreviation
	}

	raw := map[string]interface{}{
		"pmid": citation.PMID.Value,
	}
	if citation.MeshHeadingList != nil {
		meshTerms := make([]string, 0, len(citation.MeshHeadingList.MeshHeadings))
		for _, mh := range citation.MeshHeadingList.MeshHeadings {
			meshTerms = append(meshTerms, mh.DescriptorName.Value)
		}
		raw["mesh_terms"] = meshTerms
	}
	if citation.KeywordList != nil {
		keywords := make([]string, 0, len(citation.KeywordList.Keywords))
		for _, kw := range citation.KeywordList.Keywords {
			keywords = append(keywords, kw.Value)
		}
		raw["keywords"] = keywords
	}
	if citation.Article.PublicationTypeList != nil {
		pubTypes := make([]string, 0, len(citation.Article.PublicationTypeList.PublicationTypes))
		for _, pt := range citation.Article.PublicationTypeList.PublicationTypes {
			pubTypes = append(pubTypes, pt.Value)
		}
		raw["publication_types"] = pubTypes
	}

	rec := domain.PaperRecord{
		Title:   citation.Article.ArticleTitle,
		DOI:     doi,
		Source:  domain.SourceTypePubMed,
		Authors: extractAuthors(citation.Article.AuthorList),
		Year:    year,
		Venue:   journal,
		Raw:     raw,
	}

	if abstract := extractAbstract(citation.Article.Abstract); abstract != "" {
		rec.Abstract = &abstract
	}

	return rec
}

// extractDOI extracts the DOI from article metadata.
// It checks ELocationID first (more reliable), then ArticleIdList.
func extractDOI(article Article, pubmedData PubmedData) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return eloc.Value
		}
	}

	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			return aid.Value
		}
	}

	return ""
}

// extractPublicationYear extracts the publication year, preferring ArticleDate
// over the journal issue PubDate. Returns zero when no year is present.
func extractPublicationYear(article Article) int {
	for _, ad := range article.ArticleDate {
		if y, err := strconv.Atoi(ad.Year); err == nil && y > 0 {
			return y
		}
	}

	pubDate := article.Journal.JournalIssue.PubDate
	if pubDate.Year != "" {
		if y, err := strconv.Atoi(pubDate.Year); err == nil {
			return y
		}
	}

	// MedlineDate can be "2020 Jan-Feb", "2020 Spring", "2020-2021", etc.
	if pubDate.MedlineDate != "" {
		parts := strings.Fields(pubDate.MedlineDate)
		if len(parts) > 0 {
			yearStr := strings.Split(parts[0], "-")[0]
			if y, err := strconv.Atoi(yearStr); err == nil {
				return y
			}
		}
	}

	return 0
}

// extractAbstract concatenates multiple abstract sections into a single string.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}

// extractAuthors flattens the PubMed author list into display names.
func extractAuthors(authorList *AuthorList) []string {
	if authorList == nil || len(authorList.Authors) == 0 {
		return nil
	}

	authors := make([]string, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}

		var name string
		if a.CollectiveName != "" {
			name = a.CollectiveName
		} else {
			nameParts := make([]string, 0, 2)
			if a.ForeName != "" {
				nameParts = append(nameParts, a.ForeName)
			}
			if a.LastName != "" {
				nameParts = append(nameParts, a.LastName)
			}
			name = strings.Join(nameParts, " ")
		}

		if name != "" {
			authors = append(authors, name)
		}
	}

	return authors
}
