package citation

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/FocuswithJustin/reflink/core/books"
)

// DefaultBaseURL is the reference site every link points into.
const DefaultBaseURL = "https://biblehub.com"

// Rule names the URL shape a link was built with.
type Rule string

const (
	// RuleVerse is the parallel-translation page of a single verse.
	RuleVerse Rule = "verse"
	// RuleVersion is a chapter page in an explicitly requested version.
	RuleVersion Rule = "version"
	// RuleChapter is a chapter page in the default version.
	RuleChapter Rule = "chapter"
)

// LinkResult is the destination and label of one citation link.
type LinkResult struct {
	Href        string `json:"href"`
	DisplayText string `json:"display"`
	Rule        Rule   `json:"rule"`
}

// Anchor renders the link as an anchor that opens in a new tab and keeps
// its label on one line.
func (l LinkResult) Anchor() string {
	var sb strings.Builder
	sb.WriteString(`<a href="`)
	sb.WriteString(html.EscapeString(l.Href))
	sb.WriteString(`" target="_blank" rel="noopener noreferrer"><span style="white-space:nowrap">`)
	sb.WriteString(html.EscapeString(l.DisplayText))
	sb.WriteString(`</span></a>`)
	return sb.String()
}

// LinkBuilder derives URLs and display text from citations. The zero value
// is ready to use and produces the same links as NewLinkBuilder.
type LinkBuilder struct {
	BaseURL        string
	DefaultVersion Version
}

// NewLinkBuilder returns a builder for DefaultBaseURL with NLT as the
// chapter default.
func NewLinkBuilder() LinkBuilder {
	return LinkBuilder{BaseURL: DefaultBaseURL, DefaultVersion: NLT}
}

// Build applies the first matching rule:
//
//  1. a single verse links to its parallel view; any version is ignored
//  2. an explicit version links to that version's chapter page; a verse
//     range is not represented in the URL
//  3. anything else links to the chapter page in the default version
//
// The display text always carries the full reference and the version when
// one was written.
func (b LinkBuilder) Build(c Citation) LinkResult {
	base := strings.TrimRight(b.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	def := b.DefaultVersion
	if def == "" {
		def = NLT
	}

	book := books.PathName(c.Book)
	chapter := strconv.Itoa(c.Chapter)

	var res LinkResult
	switch {
	case c.Verse > 0 && c.VerseEnd == 0:
		res.Href = base + "/" + book + "/" + chapter + "-" + strconv.Itoa(c.Verse) + ".htm"
		res.Rule = RuleVerse
	case c.Version != "":
		res.Href = base + "/" + c.Version.PathName() + "/" + book + "/" + chapter + ".htm"
		res.Rule = RuleVersion
	default:
		res.Href = base + "/" + def.PathName() + "/" + book + "/" + chapter + ".htm"
		res.Rule = RuleChapter
	}

	res.DisplayText = books.DisplayName(c.Book) + " " + c.Reference()
	if c.Version != "" {
		res.DisplayText += " " + string(c.Version)
	}
	return res
}
