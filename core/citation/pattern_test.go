package citation

import (
	"strings"
	"testing"

	"github.com/FocuswithJustin/reflink/core/books"
)

func newTestPattern(t *testing.T) *Pattern {
	t.Helper()
	p, err := NewPattern(books.Default())
	if err != nil {
		t.Fatalf("NewPattern() error = %v", err)
	}
	return p
}

func TestPatternFindAll(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []RawMatch
	}{
		{
			name:  "single verse",
			input: "John 3:16",
			want:  []RawMatch{{BookToken: "John", Chapter: "3", VerseExpr: "16", Text: "John 3:16"}},
		},
		{
			name:  "range with version",
			input: "read 1 Cor 13:4-7 NIV today",
			want:  []RawMatch{{BookToken: "1 Cor", Chapter: "13", VerseExpr: "4-7", VersionToken: "NIV", Text: "1 Cor 13:4-7 NIV"}},
		},
		{
			name:  "chapter only",
			input: "Ps 23",
			want:  []RawMatch{{BookToken: "Ps", Chapter: "23", Text: "Ps 23"}},
		},
		{
			name:  "separate numeral",
			input: "2 Thess 3",
			want:  []RawMatch{{NumericPrefix: "2", BookToken: "Thess", Chapter: "3", Text: "2 Thess 3"}},
		},
		{
			name:  "period after abbreviation",
			input: "Gen. 1:1",
			want:  []RawMatch{{BookToken: "Gen", Chapter: "1", VerseExpr: "1", Text: "Gen. 1:1"}},
		},
		{
			name:  "bracketed version",
			input: "John 3 (kjv).",
			want:  []RawMatch{{BookToken: "John", Chapter: "3", VersionToken: "kjv", Text: "John 3 (kjv)"}},
		},
		{
			name:  "dashed version",
			input: "Rom 8:28 - ESV",
			want:  []RawMatch{{BookToken: "Rom", Chapter: "8", VerseExpr: "28", VersionToken: "ESV", Text: "Rom 8:28 - ESV"}},
		},
		{
			name:  "multi word spelling",
			input: "Song  of songs 2:1",
			want:  []RawMatch{{BookToken: "Song  of songs", Chapter: "2", VerseExpr: "1", Text: "Song  of songs 2:1"}},
		},
		{
			name:  "longest spelling wins",
			input: "Jonah 1 and John 1",
			want: []RawMatch{
				{BookToken: "Jonah", Chapter: "1", Text: "Jonah 1"},
				{BookToken: "John", Chapter: "1", Text: "John 1"},
			},
		},
		{
			name:  "unknown version is not captured",
			input: "John 3:16 MSG",
			want:  []RawMatch{{BookToken: "John", Chapter: "3", VerseExpr: "16", Text: "John 3:16"}},
		},
		{
			name:  "no citation",
			input: "Meet me at 3:16 tomorrow",
			want:  nil,
		},
		{
			name:  "book inside a word",
			input: "Jonathan 3",
			want:  nil,
		},
	}

	p := newTestPattern(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.FindAll(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("FindAll(%q) = %d matches %+v, want %d", tt.input, len(got), got, len(tt.want))
			}
			for i, want := range tt.want {
				g := got[i]
				if g.NumericPrefix != want.NumericPrefix || g.BookToken != want.BookToken ||
					g.Chapter != want.Chapter || g.VerseExpr != want.VerseExpr ||
					g.VersionToken != want.VersionToken || g.Text != want.Text {
					t.Errorf("FindAll(%q)[%d] = %+v, want %+v", tt.input, i, g, want)
				}
				if tt.input[g.Start:g.End] != g.Text {
					t.Errorf("FindAll(%q)[%d] offsets %d:%d do not cover %q", tt.input, i, g.Start, g.End, g.Text)
				}
			}
		})
	}
}

func TestPatternOneAndTwoTokenNumerals(t *testing.T) {
	p := newTestPattern(t)
	for _, input := range []string{"1 Chronicles 2", "1Chronicles 2", "1 chr 2", "1_sam 3", "song_of_solomon 2"} {
		got := p.FindAll(input)
		if len(got) != 1 {
			t.Fatalf("FindAll(%q) = %+v, want one match", input, got)
		}
		if got[0].Text != input {
			t.Errorf("FindAll(%q) matched %q, want the whole input", input, got[0].Text)
		}
	}
}

func TestPatternMatch(t *testing.T) {
	p := newTestPattern(t)

	if _, ok := p.Match("John 3:16"); !ok {
		t.Error("Match(John 3:16) = false, want true")
	}
	if _, ok := p.Match("see John 3:16"); ok {
		t.Error("Match(see John 3:16) = true, want false")
	}
	if _, ok := p.Match("John 3:16 and more"); ok {
		t.Error("Match with trailing text = true, want false")
	}
}

func TestPatternEscapesSpellings(t *testing.T) {
	table, err := books.NewTable([]books.Entry{{ID: "a.b", Aliases: []string{"a+b"}}})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	p, err := NewPattern(table)
	if err != nil {
		t.Fatalf("NewPattern() error = %v", err)
	}
	if !strings.Contains(p.String(), `a\+b`) {
		t.Errorf("pattern %q does not escape %q", p.String(), "a+b")
	}
	if got := p.FindAll("axb 1"); len(got) != 0 {
		t.Errorf("FindAll(axb 1) = %+v, want no match", got)
	}
}
