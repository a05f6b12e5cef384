package citation

import (
	"regexp"
	"strings"

	"github.com/FocuswithJustin/reflink/core/books"
)

// Capture group indexes of the citation expression.
const (
	groupPrefix = iota + 1
	groupBook
	groupChapter
	groupVerse
	groupVersion
)

// Pattern locates citation-shaped spans in text.
type Pattern struct {
	re    *regexp.Regexp
	whole *regexp.Regexp
}

// NewPattern compiles the citation expression from the table's spellings.
// Words of a spelling may be separated by whitespace or by one underscore,
// as in URL paths. Spellings are escaped and joined longest first, so that the first
// alternative the engine accepts is also the most specific one.
func NewPattern(table *books.Table) (*Pattern, error) {
	body := patternBody(table.Spellings())

	re, err := regexp.Compile(`(?i)` + body)
	if err != nil {
		return nil, err
	}
	whole, err := regexp.Compile(`(?i)^(?:` + body + `)$`)
	if err != nil {
		return nil, err
	}
	return &Pattern{re: re, whole: whole}, nil
}

func patternBody(spellings []string) string {
	alts := make([]string, len(spellings))
	for i, s := range spellings {
		alts[i] = strings.ReplaceAll(regexp.QuoteMeta(s), " ", `(?:\s+|_)`)
	}

	codes := make([]string, len(versions))
	for i, v := range versions {
		codes[i] = string(v)
	}

	var sb strings.Builder
	sb.WriteString(`\b(?:([123])\s+)?`)
	sb.WriteString(`(` + strings.Join(alts, "|") + `)`)
	sb.WriteString(`[\s.]+(\d+)`)
	sb.WriteString(`(?::(\d+(?:-\d+)?))?`)
	sb.WriteString(`(?:[\s\-\[(]+(` + strings.Join(codes, "|") + `)\b[\])]?)?`)
	return sb.String()
}

// FindAll returns every non-overlapping match in text, left to right.
func (p *Pattern) FindAll(text string) []RawMatch {
	locs := p.re.FindAllStringSubmatchIndex(text, -1)
	if locs == nil {
		return nil
	}
	matches := make([]RawMatch, len(locs))
	for i, loc := range locs {
		matches[i] = rawMatch(text, loc)
	}
	return matches
}

// Match reports whether the whole of text is one citation.
func (p *Pattern) Match(text string) (RawMatch, bool) {
	loc := p.whole.FindStringSubmatchIndex(text)
	if loc == nil {
		return RawMatch{}, false
	}
	return rawMatch(text, loc), true
}

// String returns the source of the compiled expression.
func (p *Pattern) String() string {
	return p.re.String()
}

func rawMatch(text string, loc []int) RawMatch {
	group := func(n int) string {
		if loc[2*n] < 0 {
			return ""
		}
		return text[loc[2*n]:loc[2*n+1]]
	}
	return RawMatch{
		NumericPrefix: group(groupPrefix),
		BookToken:     group(groupBook),
		Chapter:       group(groupChapter),
		VerseExpr:     group(groupVerse),
		VersionToken:  group(groupVersion),
		Start:         loc[0],
		End:           loc[1],
		Text:          text[loc[0]:loc[1]],
	}
}
