// Package citation finds scripture citations in free text and turns them
// into links.
//
// A scan runs in four steps: Pattern locates citation-shaped spans, Resolver
// normalizes each span into a Citation, LinkBuilder derives the destination
// URL and display text, and Rewriter stitches the results back into markup.
// Every type here is immutable after construction and safe for concurrent
// use.
package citation

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/reflink/core/errors"
)

// Version is a translation code recognized after a citation.
type Version string

// Recognized translation codes.
const (
	KJV  Version = "KJV"
	NIV  Version = "NIV"
	NLT  Version = "NLT"
	ESV  Version = "ESV"
	NASB Version = "NASB"
	CSB  Version = "CSB"
	NET  Version = "NET"
	WEB  Version = "WEB"
)

var versions = []Version{KJV, NIV, NLT, ESV, NASB, CSB, NET, WEB}

// Versions returns the recognized translation codes.
func Versions() []Version {
	out := make([]Version, len(versions))
	copy(out, versions)
	return out
}

// ParseVersion maps a code in any letter case to a Version.
func ParseVersion(s string) (Version, error) {
	code := Version(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range versions {
		if v == code {
			return v, nil
		}
	}
	return "", &errors.ValidationError{Field: "version", Value: s, Message: "unknown version " + strconv.Quote(s)}
}

// PathName is the version as it appears in a URL path.
func (v Version) PathName() string {
	return strings.ToLower(string(v))
}

// Citation is a resolved reference. Zero values mean "absent": Verse 0 is a
// whole-chapter citation, VerseEnd 0 is not a range, an empty Version was
// not written in the text.
type Citation struct {
	Book     string  `json:"book"`
	Chapter  int     `json:"chapter"`
	Verse    int     `json:"verse,omitempty"`
	VerseEnd int     `json:"verse_end,omitempty"`
	Version  Version `json:"version,omitempty"`
}

// IsRange reports whether the citation spans a verse range.
func (c Citation) IsRange() bool {
	return c.Verse > 0 && c.VerseEnd > 0
}

// String renders the citation in its normalized form, e.g.
// "1 corinthians 13:4-7 NIV".
func (c Citation) String() string {
	var sb strings.Builder
	sb.WriteString(c.Book)
	sb.WriteByte(' ')
	sb.WriteString(c.Reference())
	if c.Version != "" {
		sb.WriteByte(' ')
		sb.WriteString(string(c.Version))
	}
	return sb.String()
}

// Reference renders chapter and verse part: "13", "3:16" or "13:4-7".
func (c Citation) Reference() string {
	ref := strconv.Itoa(c.Chapter)
	if c.Verse > 0 {
		ref += ":" + strconv.Itoa(c.Verse)
		if c.VerseEnd > 0 {
			ref += "-" + strconv.Itoa(c.VerseEnd)
		}
	}
	return ref
}

// RawMatch holds the fields captured for one citation-shaped span. It only
// lives for a single scan.
type RawMatch struct {
	NumericPrefix string // "1", "2", "3" or ""
	BookToken     string
	Chapter       string
	VerseExpr     string // "16" or "4-7", without the colon
	VersionToken  string

	Start, End int // byte offsets of the span in the scanned text
	Text       string
}
