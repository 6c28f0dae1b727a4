package report

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/questscholar/litpipeline/internal/collection"
	"github.com/questscholar/litpipeline/internal/domain"
)

// htmlTemplate renders the full review document. The view model is built in
// Go so the template stays free of scoring logic.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Literature Review: {{.Subject}}</title>
<style>
body { font-family: Georgia, serif; max-width: 60em; margin: 2em auto; color: #1a1a1a; }
h1 { border-bottom: 2px solid #2c3e50; padding-bottom: 0.3em; }
h2 { color: #2c3e50; margin-top: 1.6em; }
.meta { color: #666; font-size: 0.9em; }
.paper { margin: 1.2em 0; padding: 0.8em 1em; border-left: 3px solid #2c3e50; background: #f8f8f8; }
.paper.excluded { border-left-color: #b0b0b0; }
.scores { font-size: 0.85em; color: #444; }
.flags span { background: #e0e7ef; border-radius: 3px; padding: 0 0.4em; margin-right: 0.3em; font-size: 0.8em; }
.rationale { font-style: italic; color: #555; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 0.3em 0.8em; text-align: left; }
pre { background: #f0f0f0; padding: 1em; overflow-x: auto; font-size: 0.8em; }
.empty { color: #a33; font-weight: bold; }
</style>
</head>
<body>
<h1>Literature Review: {{.Subject}}</h1>
<p class="meta">Generated {{.GeneratedAt}}</p>

{{if .ExecutiveSummary}}<h2>Executive Summary</h2>
<p>{{.ExecutiveSummary}}</p>{{end}}

{{if .Empty}}
<p class="empty">0 papers found for this subject and year range.</p>
{{else}}
<h2>Collection Statistics</h2>
<table>
<tr><th>Total papers</th><td>{{.Stats.Total}}</td></tr>
<tr><th>Evaluated</th><td>{{.Stats.Evaluated}}</td></tr>
<tr><th>High rated</th><td>{{.Stats.HighRated}}</td></tr>
<tr><th>Excluded</th><td>{{.Stats.Excluded}}</td></tr>
<tr><th>Average relevance</th><td>{{printf "%.2f" .Stats.AvgRelevance}}</td></tr>
<tr><th>Average methodology</th><td>{{printf "%.2f" .Stats.AvgMethodology}}</td></tr>
<tr><th>Average impact</th><td>{{printf "%.2f" .Stats.AvgImpact}}</td></tr>
</table>

{{range .Sections}}
<h2>{{.Title}}</h2>
{{range .Papers}}{{template "paper" .}}{{end}}
{{end}}

{{if .Excluded}}
<h2>Appendix: Excluded Papers</h2>
{{range .Excluded}}{{template "paper" .}}{{end}}
{{end}}

<h2>Appendix: BibTeX</h2>
<pre>{{.BibTeX}}</pre>
{{end}}
</body>
</html>

{{define "paper"}}
<div class="paper{{if .ExcludedPaper}} excluded{{end}}">
<strong>{{.Title}}</strong> ({{.Year}}){{if .Venue}} &mdash; {{.Venue}}{{end}}<br>
{{if .AuthorLine}}{{.AuthorLine}}<br>{{end}}
{{if .Evaluated}}<span class="scores">Combined {{printf "%.2f" .Combined}} &middot;
relevance {{printf "%.1f" .Relevance}}, methodology {{printf "%.1f" .Methodology}}, impact {{printf "%.1f" .Impact}}{{if .Citations}} &middot; {{.Citations}} citations{{end}}</span><br>
{{if .Flags}}<span class="flags">{{range .Flags}}<span>{{.}}</span>{{end}}</span><br>{{end}}
{{if .Rationale}}<span class="rationale">{{.Rationale}}</span>{{end}}
{{else}}<span class="scores">not evaluated{{if .Citations}} &middot; {{.Citations}} citations{{end}}</span>{{end}}
</div>
{{end}}`

// htmlPaper is the per-paper template view.
type htmlPaper struct {
	Title         string
	Year          int
	Venue         string
	AuthorLine    string
	Citations     string
	Evaluated     bool
	ExcludedPaper bool
	Combined      float64
	Relevance     float64
	Methodology   float64
	Impact        float64
	Flags         []string
	Rationale     string
}

// htmlSection groups papers under a tier heading.
type htmlSection struct {
	Title  string
	Papers []htmlPaper
}

// htmlView is the top-level template view.
type htmlView struct {
	Subject          string
	ExecutiveSummary string
	GeneratedAt      string
	Stats            collection.Stats
	Sections         []htmlSection
	Excluded         []htmlPaper
	BibTeX           string
	Empty            bool
}

// HTMLGenerator renders the review as a standalone HTML document.
type HTMLGenerator struct {
	outputDir string
	tmpl      *template.Template
	logger    zerolog.Logger
}

// NewHTMLGenerator creates an HTML generator writing into outputDir.
func NewHTMLGenerator(outputDir string, logger zerolog.Logger) *HTMLGenerator {
	return &HTMLGenerator{
		outputDir: outputDir,
		tmpl:      template.Must(template.New("report").Parse(htmlTemplate)),
		logger:    logger.With().Str("component", "report_html").Logger(),
	}
}

// Kind identifies the artifact this generator produces.
func (g *HTMLGenerator) Kind() domain.ReportKind {
	return domain.ReportKindHTML
}

// Generate renders the report to a timestamped file in the output directory.
func (g *HTMLGenerator) Generate(ctx context.Context, in Input) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewReportError(domain.ReportKindHTML, err)
	}

	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return nil, domain.NewReportError(domain.ReportKindHTML, fmt.Errorf("creating output directory: %w", err))
	}

	path := filepath.Join(g.outputDir, fmt.Sprintf("literature_review_%s.html", in.GeneratedAt.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return nil, domain.NewReportError(domain.ReportKindHTML, err)
	}
	defer f.Close()

	if err := g.tmpl.Execute(f, buildHTMLView(in)); err != nil {
		return nil, domain.NewReportError(domain.ReportKindHTML, fmt.Errorf("executing template: %w", err))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.NewReportError(domain.ReportKindHTML, err)
	}

	g.logger.Info().Str("path", path).Int64("size_bytes", info.Size()).Msg("html report generated")
	return &Artifact{Kind: domain.ReportKindHTML, Path: path, SizeBytes: info.Size()}, nil
}

// buildHTMLView converts the shared report input to the template view model.
func buildHTMLView(in Input) htmlView {
	sections, excluded := SplitPapers(in.Papers)

	view := htmlView{
		Subject:          in.Subject,
		ExecutiveSummary: in.ExecutiveSummary,
		GeneratedAt:      in.GeneratedAt.Format("January 2, 2006 15:04 MST"),
		Stats:            in.Stats,
		BibTeX:           BibTeX(in.Papers),
		Empty:            len(in.Papers) == 0,
	}

	for _, sec := range sections {
		hs := htmlSection{Title: sec.Title}
		for _, p := range sec.Papers {
			hs.Papers = append(hs.Papers, toHTMLPaper(p, false))
		}
		view.Sections = append(view.Sections, hs)
	}
	for _, p := range excluded {
		view.Excluded = append(view.Excluded, toHTMLPaper(p, true))
	}
	return view
}

// toHTMLPaper flattens one ranked paper for the template.
func toHTMLPaper(p collection.RankedPaper, excludedPaper bool) htmlPaper {
	hp := htmlPaper{
		Title:         p.Record.Title,
		Year:          p.Record.Year,
		Venue:         p.Record.Venue,
		AuthorLine:    authorLine(p.Record.Authors),
		Evaluated:     p.Evaluated,
		ExcludedPaper: excludedPaper,
		Combined:      p.Combined,
	}
	if p.Record.CitationCount != nil {
		hp.Citations = fmt.Sprintf("%d", *p.Record.CitationCount)
	}
	if p.Evaluated {
		hp.Relevance = p.Evaluation.Relevance
		hp.Methodology = p.Evaluation.Methodology
		hp.Impact = p.Evaluation.Impact
		hp.Flags = p.Evaluation.Flags
		hp.Rationale = p.Evaluation.Rationale
	}
	return hp
}

// authorLine joins authors for display, abbreviating long lists.
func authorLine(authors []string) string {
	const maxShown = 6
	if len(authors) == 0 {
		return ""
	}
	if len(authors) <= maxShown {
		return joinAuthors(authors)
	}
	return joinAuthors(authors[:maxShown]) + " et al."
}

func joinAuthors(authors []string) string {
	out := ""
	for i, a := range authors {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}
