package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"

	"github.com/questscholar/litpipeline/internal/collection"
	"github.com/questscholar/litpipeline/internal/domain"
)

// PDFGenerator renders the review as a PDF document.
type PDFGenerator struct {
	outputDir string
	logger    zerolog.Logger
}

// NewPDFGenerator creates a PDF generator writing into outputDir.
func NewPDFGenerator(outputDir string, logger zerolog.Logger) *PDFGenerator {
	return &PDFGenerator{
		outputDir: outputDir,
		logger:    logger.With().Str("component", "report_pdf").Logger(),
	}
}

// Kind identifies the artifact this generator produces.
func (g *PDFGenerator) Kind() domain.ReportKind {
	return domain.ReportKindPDF
}

// Generate renders the report to a timestamped file in the output directory.
func (g *PDFGenerator) Generate(ctx context.Context, in Input) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewReportError(domain.ReportKindPDF, err)
	}

	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return nil, domain.NewReportError(domain.ReportKindPDF, fmt.Errorf("creating output directory: %w", err))
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, sanitize("Literature Review: "+in.Subject), "", "L", false)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 6, "Generated "+in.GeneratedAt.Format("January 2, 2006 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	if in.ExecutiveSummary != "" {
		g.heading(pdf, "Executive Summary")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, sanitize(in.ExecutiveSummary), "", "L", false)
		pdf.Ln(2)
	}

	if len(in.Papers) == 0 {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, "0 papers found for this subject and year range.", "", "L", false)
		return g.write(pdf, in)
	}

	g.heading(pdf, "Collection Statistics")
	pdf.SetFont("Helvetica", "", 10)
	stats := []string{
		fmt.Sprintf("Total papers: %d", in.Stats.Total),
		fmt.Sprintf("Evaluated: %d", in.Stats.Evaluated),
		fmt.Sprintf("High rated: %d", in.Stats.HighRated),
		fmt.Sprintf("Excluded: %d", in.Stats.Excluded),
		fmt.Sprintf("Average scores: relevance %.2f, methodology %.2f, impact %.2f",
			in.Stats.AvgRelevance, in.Stats.AvgMethodology, in.Stats.AvgImpact),
	}
	for _, line := range stats {
		pdf.CellFormat(0, 5, line, "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	sections, excluded := SplitPapers(in.Papers)
	for _, sec := range sections {
		g.heading(pdf, sec.Title)
		for _, p := range sec.Papers {
			g.paper(pdf, p)
		}
	}

	if len(excluded) > 0 {
		g.heading(pdf, "Appendix: Excluded Papers")
		for _, p := range excluded {
			g.paper(pdf, p)
		}
	}

	g.heading(pdf, "Appendix: BibTeX")
	pdf.SetFont("Courier", "", 7)
	pdf.MultiCell(0, 3.5, sanitize(BibTeX(in.Papers)), "", "L", false)

	return g.write(pdf, in)
}

// heading emits a section heading.
func (g *PDFGenerator) heading(pdf *fpdf.Fpdf, title string) {
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, sanitize(title), "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

// paper emits one ranked paper block.
func (g *PDFGenerator) paper(pdf *fpdf.Fpdf, p collection.RankedPaper) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.MultiCell(0, 5, sanitize(fmt.Sprintf("%s (%d)", p.Record.Title, p.Record.Year)), "", "L", false)

	pdf.SetFont("Helvetica", "", 9)
	if line := authorLine(p.Record.Authors); line != "" {
		pdf.MultiCell(0, 4.5, sanitize(line), "", "L", false)
	}
	if p.Record.Venue != "" {
		pdf.MultiCell(0, 4.5, sanitize(p.Record.Venue), "", "L", false)
	}

	pdf.SetTextColor(80, 80, 80)
	if p.Evaluated {
		score := fmt.Sprintf("Combined %.2f (relevance %.1f, methodology %.1f, impact %.1f)",
			p.Combined, p.Evaluation.Relevance, p.Evaluation.Methodology, p.Evaluation.Impact)
		if p.Record.CitationCount != nil {
			score += fmt.Sprintf(", %d citations", *p.Record.CitationCount)
		}
		pdf.MultiCell(0, 4.5, score, "", "L", false)
		if len(p.Evaluation.Flags) > 0 {
			pdf.MultiCell(0, 4.5, "Flags: "+strings.Join(p.Evaluation.Flags, ", "), "", "L", false)
		}
		if p.Evaluation.Rationale != "" {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.MultiCell(0, 4.5, sanitize(p.Evaluation.Rationale), "", "L", false)
		}
	} else {
		pdf.MultiCell(0, 4.5, "Not evaluated", "", "L", false)
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(2)
}

// write saves the document and returns its artifact reference.
func (g *PDFGenerator) write(pdf *fpdf.Fpdf, in Input) (*Artifact, error) {
	path := filepath.Join(g.outputDir, fmt.Sprintf("literature_review_%s.pdf", in.GeneratedAt.Format("20060102_150405")))
	if err := pdf.OutputFileAndClose(path); err != nil {
		return nil, domain.NewReportError(domain.ReportKindPDF, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.NewReportError(domain.ReportKindPDF, err)
	}

	g.logger.Info().Str("path", path).Int64("size_bytes", info.Size()).Msg("pdf report generated")
	return &Artifact{Kind: domain.ReportKindPDF, Path: path, SizeBytes: info.Size()}, nil
}

// sanitize replaces characters outside the core PDF fonts' cp1252 range.
func sanitize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r < 256 {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('?')
		}
	}
	return sb.String()
}
