package pubmed

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

const esearchXML = `<?xml version="1.0" encoding="UTF-8"?>
<eSearchResult>
  <Count>2</Count>
  <RetMax>2</RetMax>
  <IdList>
    <Id>11111111</Id>
    <Id>22222222</Id>
  </IdList>
</eSearchResult>`

const efetchXML = `<?xml version="1.0" encoding="UTF-8"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">11111111</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <PubDate><Year>2021</Year><Month>Mar</Month></PubDate>
          </JournalIssue>
          <Title>Journal of Testing</Title>
        </Journal>
        <ArticleTitle>Machine Learning in Oncology</ArticleTitle>
        <ELocationID EIdType="doi" ValidYN="Y">10.1000/test.001</ELocationID>
        <Abstract>
          <AbstractText Label="BACKGROUND">Deep models are used widely.</AbstractText>
          <AbstractText Label="RESULTS">They perform well.</AbstractText>
        </Abstract>
        <AuthorList CompleteYN="Y">
          <Author ValidYN="Y"><LastName>Smith</LastName><ForeName>Jane</ForeName></Author>
          <Author ValidYN="Y"><CollectiveName>The Oncology Consortium</CollectiveName></Author>
          <Author ValidYN="N"><LastName>Ghost</LastName><ForeName>Bad</ForeName></Author>
        </AuthorList>
        <PublicationTypeList>
          <PublicationType UI="D016428">Journal Article</PublicationType>
          <PublicationType UI="D016454">Review</PublicationType>
        </PublicationTypeList>
      </Article>
      <MeshHeadingList>
        <MeshHeading><DescriptorName UI="D008403">Machine Learning</DescriptorName></MeshHeading>
      </MeshHeadingList>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">11111111</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">22222222</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <PubDate><MedlineDate>2020 Jan-Feb</MedlineDate></PubDate>
          </JournalIssue>
          <ISOAbbreviation>J Test Abbr</ISOAbbreviation>
        </Journal>
        <ArticleTitle>A Second Paper</ArticleTitle>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="doi">10.1000/test.002</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

const emptyEsearchXML = `<?xml version="1.0" encoding="UTF-8"?>
<eSearchResult>
  <Count>0</Count>
  <RetMax>0</RetMax>
  <IdList></IdList>
  <ErrorList>
    <PhraseNotFound>unobtainium therapeutics</PhraseNotFound>
  </ErrorList>
</eSearchResult>`

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
		Subject:   "machine learning oncology",
		StartYear: 2019,
		EndYear:   2024,
		MaxCount:  7,
	}
}

func TestClientSearch(t *testing.T) {
	t.Parallel()

	var esearchTerm string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Path {
		case "/esearch.fcgi":
			esearchTerm = r.URL.Query().Get("term")
			assert.Equal(t, "pubmed", r.URL.Query().Get("db"))
			assert.Equal(t, "7", r.URL.Query().Get("retmax"))
			_, _ = w.Write([]byte(esearchXML))
		case "/efetch.fcgi":
			assert.Equal(t, "11111111,22222222", r.URL.Query().Get("id"))
			_, _ = w.Write([]byte(efetchXML))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewWithHTTPClient(Config{BaseURL: server.URL, Enabled: true}, testHTTPClient())

	result, err := client.Search(context.Background(), testParams())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "(machine learning oncology) AND (2019[pdat] : 2024[pdat])", esearchTerm)
	assert.Equal(t, 2, result.TotalResults)
	assert.Equal(t, domain.SourceTypePubMed, result.Source)
	require.Len(t, result.Records, 2)

	first := result.Records[0]
	assert.Equal(t, "Machine Learning in Oncology", first.Title)
	assert.Equal(t, "10.1000/test.001", first.DOI)
	assert.Equal(t, 2021, first.Year)
	assert.Equal(t, "Journal of Testing", first.Venue)
	assert.Equal(t, []string{"Jane Smith", "The Oncology Consortium"}, first.Authors)
	require.NotNil(t, first.Abstract)
	assert.Equal(t, "BACKGROUND: Deep models are used widely. RESULTS: They perform well.", *first.Abstract)
	assert.Nil(t, first.CitationCount)
	assert.Equal(t, "11111111", first.Raw["pmid"])
	assert.Equal(t, []string{"Machine Learning"}, first.Raw["mesh_terms"])
	assert.Equal(t, []string{"Journal Article", "Review"}, first.Raw["publication_types"])

	second := result.Records[1]
	assert.Equal(t, "A Second Paper", second.Title)
	assert.Equal(t, "10.1000/test.002", second.DOI)
	assert.Equal(t, 2020, second.Year)
	assert.Equal(t, "J Test Abbr", second.Venue)
	assert.Nil(t, second.Abstract)
}

func TestClientSearchPhraseNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/esearch.fcgi", r.URL.Path)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(emptyEsearchXML))
	}))
	defer server.Close()

	client := NewWithHTTPClient(Config{BaseURL: server.URL, Enabled: true}, testHTTPClient())

	result, err := client.Search(context.Background(), testParams())
	require.NoError(t, err)
	assert.Empty(t, result.Records)
}

func TestClientSearchServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewWithHTTPClient(Config{BaseURL: server.URL, Enabled: true}, testHTTPClient())

	_, err := client.Search(context.Background(), testParams())
	require.Error(t, err)

	var srcErr *domain.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, domain.SourceTypePubMed, srcErr.Source)
}

func TestClientSearchInvalidParams(t *testing.T) {
	t.Parallel()

	client := New(Config{Enabled: true})

	_, err := client.Search(context.Background(), papersources.SearchParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigurationInvalid)
}

func TestClientMetadata(t *testing.T) {
	t.Parallel()

	client := New(Config{Enabled: true})
	assert.Equal(t, domain.SourceTypePubMed, client.SourceType())
	assert.Equal(t, "PubMed", client.Name())
	assert.True(t, client.IsEnabled())

	disabled := New(Config{})
	assert.False(t, disabled.IsEnabled())
}

func TestExtractPublicationYear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		article Article
		want    int
	}{
		{
			name: "article date preferred",
			article: Article{
				ArticleDate: []ArticleDate{{Year: "2022"}},
				Journal:     Journal{JournalIssue: JournalIssue{PubDate: PubDate{Year: "2021"}}},
			},
			want: 2022,
		},
		{
			name:    "pub date year",
			article: Article{Journal: Journal{JournalIssue: JournalIssue{PubDate: PubDate{Year: "2019"}}}},
			want:    2019,
		},
		{
			name:    "medline date range",
			article: Article{Journal: Journal{JournalIssue: JournalIssue{PubDate: PubDate{MedlineDate: "2018-2019"}}}},
			want:    2018,
		},
		{
			name:    "medline date with season",
			article: Article{Journal: Journal{JournalIssue: JournalIssue{PubDate: PubDate{MedlineDate: "2020 Spring"}}}},
			want:    2020,
		},
		{
			name:    "no date",
			article: Article{},
			want:    0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, extractPublicationYear(tt.article))
		})
	}
}
