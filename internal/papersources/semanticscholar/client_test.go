package semanticscholar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questscholar/litpipeline/internal/domain"
	"github.com/questscholar/litpipeline/internal/papersources"
)

func testHTTPClient() *papersources.HTTPClient {
	return papersources.NewHTTPClient(papersources.HTTPClientConfig{
		RateLimit:  100,
		BurstSize:  50,
		MaxRetries: 1,
	})
}

func testParams() papersources.SearchParams {
	return papersources.SearchParams{
		Subject:   "CRISPR gene editing",
		StartYear: 2020,
		EndYear:   2024,
		MaxCount:  7,
	}
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{Enabled: true}, nil)

	require.NotNil(t, client)
	assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	assert.Equal(t, DefaultTimeout, client.config.Timeout)
	assert.Equal(t, DefaultRateLimit, client.config.RateLimit)
	assert.True(t, client.config.Enabled)
	assert.Equal(t, domain.SourceTypeSemanticScholar, client.SourceType())
	assert.Equal(t, "Semantic Scholar", client.Name())
}

func TestSearch(t *testing.T) {
	t.Parallel()

	t.Run("converts results to records", func(t *testing.T) {
		t.Parallel()

		var gotQuery, gotYear, gotLimit string
		citations := 128
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("query")
			gotYear = r.URL.Query().Get("year")
			gotLimit = r.URL.Query().Get("limit")

			resp := SearchResponse{
				Total: 2,
				Data: []PaperResult{
					{
						PaperID:       "abc123",
						Title:         "CRISPR Screens in Cancer",
						Abstract:      "We survey CRISPR screens.",
						Year:          2022,
						Venue:         "Nature",
						Authors:       []Author{{Name: "A. One"}, {Name: "B. Two"}},
						CitationCount: &citations,
						ExternalIDs:   &ExternalIDs{DOI: "10.1000/abc"},
					},
					{
						// Missing year, must be dropped.
						PaperID: "def456",
						Title:   "Unparseable Entry",
					},
				},
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL, Enabled: true}, testHTTPClient())

		result, err := client.Search(context.Background(), testParams())
		require.NoError(t, err)

		assert.Equal(t, "CRISPR gene editing", gotQuery)
		assert.Equal(t, "2020-2024", gotYear)
		assert.Equal(t, "7", gotLimit)

		require.Len(t, result.Records, 1)
		rec := result.Records[0]
		assert.Equal(t, "CRISPR Screens in Cancer", rec.Title)
		assert.Equal(t, 2022, rec.Year)
		assert.Equal(t, "10.1000/abc", rec.DOI)
		assert.Equal(t, domain.SourceTypeSemanticScholar, rec.Source)
		assert.Equal(t, []string{"A. One", "B. Two"}, rec.Authors)
		require.NotNil(t, rec.CitationCount)
		assert.Equal(t, 128, *rec.CitationCount)
		assert.Equal(t, 2, result.TotalResults)
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(SearchResponse{Total: 0})
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL, Enabled: true}, testHTTPClient())

		result, err := client.Search(context.Background(), testParams())
		require.NoError(t, err)
		assert.Empty(t, result.Records)
	})

	t.Run("caps records at max count", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := SearchResponse{Total: 10}
			for i := 0; i < 10; i++ {
				resp.Data = append(resp.Data, PaperResult{
					PaperID: "p",
					Title:   "Paper " + string(rune('A'+i)),
					Year:    2021,
				})
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL, Enabled: true}, testHTTPClient())

		params := testParams()
		params.MaxCount = 3
		result, err := client.Search(context.Background(), params)
		require.NoError(t, err)
		assert.Len(t, result.Records, 3)
	})

	t.Run("api error surfaces as source unavailable", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "forbidden"})
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL, Enabled: true}, testHTTPClient())

		_, err := client.Search(context.Background(), testParams())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	})

	t.Run("invalid params rejected before any request", func(t *testing.T) {
		t.Parallel()

		client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Enabled: true}, testHTTPClient())

		_, err := client.Search(context.Background(), papersources.SearchParams{})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrConfigurationInvalid)
	})
}
