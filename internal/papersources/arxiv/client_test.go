package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questscholar/litpipeline/internal/domain"
	"github.com/questscholar/litpipeline/internal/papersources"
)

const atomFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <opensearch:totalResults>42</opensearch:totalResults>
  <entry>
    <id>http://arxiv.org/abs/2301.12345v2</id>
    <title>Transformer Models for
      Protein Folding</title>
    <summary>  We study attention-based
      architectures for structure prediction.  </summary>
    <published>2023-01-15T18:30:00Z</published>
    <author><name>Alice Chen</name></author>
    <author><name>Bob Kumar</name></author>
    <arxiv:doi>10.0000/arxiv.demo</arxiv:doi>
    <arxiv:comment>18 pages, 4 figures</arxiv:comment>
    <arxiv:primary_category term="cs.LG"/>
    <category term="cs.LG"/>
    <category term="q-bio.BM"/>
    <link href="http://arxiv.org/pdf/2301.12345v2" rel="related" type="application/pdf" title="pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/hep-th/9901001v1</id>
    <title>An Old Style Identifier</title>
    <summary>Legacy identifier format.</summary>
    <published>2020-06-01T00:00:00Z</published>
    <author><name>Carol Diaz</name></author>
  </entry>
</feed>`

func testHTTPClient() *papersources.HTTPClient {
	return papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:    5 * time.Second,
		RateLimit:  100,
		BurstSize:  100,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
	})
}

func testParams() papersources.SearchParams {
	return papersources.SearchParams{
		Subject:   "protein folding",
		StartYear: 2019,
		EndYear:   2023,
		MaxCount:  7,
	}
}

func TestClientSearch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "all:protein folding AND submittedDate:[201901010000 TO 202312312359]",
			r.URL.Query().Get("search_query"))
		assert.Equal(t, "7", r.URL.Query().Get("max_results"))
		assert.Equal(t, "submittedDate", r.URL.Query().Get("sortBy"))
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomFeedXML))
	}))
	defer server.Close()

	client := NewWithHTTPClient(Config{BaseURL: server.URL, Enabled: true}, testHTTPClient())

	result, err := client.Search(context.Background(), testParams())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 42, result.TotalResults)
	assert.Equal(t, domain.SourceTypeArXiv, result.Source)
	require.Len(t, result.Records, 2)

	first := result.Records[0]
	assert.Equal(t, "Transformer Models for Protein Folding", first.Title)
	assert.Equal(t, "2301.12345", first.ArXivID)
	assert.Equal(t, "10.0000/arxiv.demo", first.DOI)
	assert.Equal(t, 2023, first.Year)
	assert.Equal(t, "arXiv Preprint", first.Venue)
	assert.Equal(t, []string{"Alice Chen", "Bob Kumar"}, first.Authors)
	require.NotNil(t, first.Abstract)
	assert.Equal(t, "We study attention-based architectures for structure prediction.", *first.Abstract)
	assert.Nil(t, first.CitationCount)
	assert.Equal(t, "http://arxiv.org/pdf/2301.12345v2", first.Raw["pdf_url"])
	assert.Equal(t, []string{"cs.LG", "q-bio.BM"}, first.Raw["categories"])
	assert.Equal(t, "cs.LG", first.Raw["primary_category"])

	second := result.Records[1]
	assert.Equal(t, "hep-th/9901001", second.ArXivID)
	assert.Equal(t, 2020, second.Year)
	assert.Equal(t, "http://arxiv.org/pdf/hep-th/9901001", second.Raw["pdf_url"])
}

func TestClientSearchServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewWithHTTPClient(Config{BaseURL: server.URL, Enabled: true}, testHTTPClient())

	_, err := client.Search(context.Background(), testParams())
	require.Error(t, err)

	var srcErr *domain.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, domain.SourceTypeArXiv, srcErr.Source)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestClientSearchInvalidParams(t *testing.T) {
	t.Parallel()

	client := New(Config{Enabled: true})

	_, err := client.Search(context.Background(), papersources.SearchParams{Subject: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigurationInvalid)
}

func TestClientMetadata(t *testing.T) {
	t.Parallel()

	client := New(Config{Enabled: true})
	assert.Equal(t, domain.SourceTypeArXiv, client.SourceType())
	assert.Equal(t, "arXiv", client.Name())
	assert.True(t, client.IsEnabled())
}

func TestExtractArXivID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"http://arxiv.org/abs/2301.12345v1", "2301.12345"},
		{"http://arxiv.org/abs/2301.12345", "2301.12345"},
		{"http://arxiv.org/abs/hep-th/9901001v3", "hep-th/9901001"},
		{"https://example.com/not-arxiv", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extractArXivID(tt.input), tt.input)
	}
}
