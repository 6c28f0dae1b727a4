package report

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/questscholar/litpipeline/internal/collection"
)

// BibTeX renders a citation entry for every paper in the given order.
// arXiv preprints become @misc entries; everything else is @article.
func BibTeX(papers []collection.RankedPaper) string {
	var sb strings.Builder
	seen := make(map[string]int)

	for _, p := range papers {
		key := citationKey(p)
		// Disambiguate colliding keys with a letter suffix.
		if n := seen[key]; n > 0 {
			key = fmt.Sprintf("%s%c", key, 'a'+n)
		}
		seen[citationKey(p)]++

		entryType := "article"
		if p.Record.ArXivID != "" && p.Record.DOI == "" {
			entryType = "misc"
		}

		sb.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, key))
		sb.WriteString(fmt.Sprintf("  title = {%s},\n", escapeBibTeX(p.Record.Title)))
		if len(p.Record.Authors) > 0 {
			sb.WriteString(fmt.Sprintf("  author = {%s},\n", escapeBibTeX(strings.Join(p.Record.Authors, " and "))))
		}
		if p.Record.Venue != "" {
			sb.WriteString(fmt.Sprintf("  journal = {%s},\n", escapeBibTeX(p.Record.Venue)))
		}
		sb.WriteString(fmt.Sprintf("  year = {%d},\n", p.Record.Year))
		if p.Record.DOI != "" {
			sb.WriteString(fmt.Sprintf("  doi = {%s},\n", p.Record.DOI))
		}
		if p.Record.ArXivID != "" {
			sb.WriteString(fmt.Sprintf("  eprint = {%s},\n  archivePrefix = {arXiv},\n", p.Record.ArXivID))
		}
		sb.WriteString("}\n\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// citationKey builds a key like "smith2021deep" from the first author's last
// name, the year, and the first significant title word.
func citationKey(p collection.RankedPaper) string {
	surname := "anon"
	if len(p.Record.Authors) > 0 {
		if s := lastName(p.Record.Authors[0]); s != "" {
			surname = s
		}
	}
	return fmt.Sprintf("%s%d%s", surname, p.Record.Year, firstSignificantWord(p.Record.Title))
}

// lastName extracts a lowercase, letters-only surname from a display name.
// Both "First Last" and "Last, First" forms are handled.
func lastName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if idx := strings.Index(name, ","); idx >= 0 {
		name = name[:idx]
	} else if fields := strings.Fields(name); len(fields) > 0 {
		name = fields[len(fields)-1]
	}

	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// bibtexStopWords are skipped when choosing the title word for citation keys.
var bibtexStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "on": {}, "of": {}, "for": {}, "in": {}, "and": {}, "to": {},
}

// firstSignificantWord returns the first lowercase title word that is not a
// stop word.
func firstSignificantWord(title string) string {
	for _, word := range strings.Fields(strings.ToLower(title)) {
		var sb strings.Builder
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				sb.WriteRune(r)
			}
		}
		w := sb.String()
		if w == "" {
			continue
		}
		if _, stop := bibtexStopWords[w]; stop {
			continue
		}
		return w
	}
	return ""
}

// escapeBibTeX escapes characters with special meaning in BibTeX values.
func escapeBibTeX(s string) string {
	replacer := strings.NewReplacer(
		"{", "\\{",
		"}", "\\}",
		"%", "\\%",
		"&", "\\&",
		"#", "\\#",
		"_", "\\_",
	)
	return replacer.Replace(s)
}
