package books

import (
	"errors"
	"testing"

	rerrors "github.com/FocuswithJustin/reflink/core/errors"
)

func TestDefaultCoversAllBooks(t *testing.T) {
	books := Default().Books()
	if len(books) != 66 {
		t.Fatalf("Books() returned %d books, want 66", len(books))
	}
	if books[0] != "genesis" || books[65] != "revelation" {
		t.Errorf("Books() order = %q..%q, want genesis..revelation", books[0], books[65])
	}
}

func TestTableRoundTrip(t *testing.T) {
	table := Default()
	for _, e := range canon {
		id := Normalize(e.ID)
		for _, spelling := range append([]string{e.ID}, e.Aliases...) {
			got, ok := table.Resolve(spelling)
			if !ok {
				t.Errorf("Resolve(%q) not found, want %q", spelling, id)
				continue
			}
			if got != id {
				t.Errorf("Resolve(%q) = %q, want %q", spelling, got, id)
			}
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"John", "john", true},
		{"  JOHN  ", "john", true},
		{"Jon", "jonah", true},
		{"joh", "john", true},
		{"1 Cor", "1 corinthians", true},
		{"1   cor", "1 corinthians", true},
		{"1_sam", "1 samuel", true},
		{"1_samuel", "1 samuel", true},
		{"Gen.", "genesis", true},
		{"Ps", "psalms", true},
		{"Song of Songs", "song of solomon", true},
		{"thess", "thessalonians", true},
		{"ＰＳ", "psalms", true}, // fullwidth
		{"Hezekiah", "", false},
		{"", "", false},
	}

	table := Default()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := table.Resolve(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Resolve(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSpellingsLongestFirst(t *testing.T) {
	spellings := Default().Spellings()
	for i := 1; i < len(spellings); i++ {
		if len(spellings[i]) > len(spellings[i-1]) {
			t.Fatalf("Spellings()[%d] = %q is longer than Spellings()[%d] = %q", i, spellings[i], i-1, spellings[i-1])
		}
	}

	index := make(map[string]int, len(spellings))
	for i, s := range spellings {
		index[s] = i
	}
	pairs := [][2]string{
		{"john", "jon"},
		{"john", "joh"},
		{"philemon", "phil"},
		{"song of songs", "song"},
		{"1 chronicles", "chronicles"},
	}
	for _, p := range pairs {
		if index[p[0]] > index[p[1]] {
			t.Errorf("%q should precede %q", p[0], p[1])
		}
	}
}

func TestSpellingsIsACopy(t *testing.T) {
	table := Default()
	s := table.Spellings()
	s[0] = "mutated"
	if table.Spellings()[0] == "mutated" {
		t.Error("Spellings() exposes internal state")
	}
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"empty", nil},
		{"shared spelling", []Entry{
			{ID: "john", Aliases: []string{"jn"}},
			{ID: "jonah", Aliases: []string{"JN"}},
		}},
		{"duplicate id", []Entry{{ID: "mark"}, {ID: "Mark"}}},
		{"empty id", []Entry{{ID: "  "}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.entries)
			if err == nil {
				t.Fatal("NewTable() expected error")
			}
			if !errors.Is(err, rerrors.ErrInvalidInput) {
				t.Errorf("NewTable() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestAliases(t *testing.T) {
	got, err := Default().Aliases("Psalms")
	if err != nil {
		t.Fatalf("Aliases() error = %v", err)
	}
	if got[0] != "psalms" {
		t.Errorf("Aliases()[0] = %q, want id first", got[0])
	}
	if len(got) != 6 {
		t.Errorf("Aliases() = %v, want 6 spellings", got)
	}

	if _, err := Default().Aliases("hezekiah"); !errors.Is(err, rerrors.ErrNotFound) {
		t.Errorf("Aliases(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestNumeral(t *testing.T) {
	tests := map[string]string{
		"1 corinthians": "1",
		"3 john":        "3",
		"john":          "",
		"1corinthians":  "",
		"":              "",
	}
	for id, want := range tests {
		if got := Numeral(id); got != want {
			t.Errorf("Numeral(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestDisplayAndPathName(t *testing.T) {
	tests := []struct {
		id      string
		display string
		path    string
	}{
		{"john", "John", "john"},
		{"1 corinthians", "1 Corinthians", "1_corinthians"},
		{"song of solomon", "Song Of Solomon", "song_of_solomon"},
		{"2 thessalonians", "2 Thessalonians", "2_thessalonians"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := DisplayName(tt.id); got != tt.display {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.id, got, tt.display)
			}
			if got := PathName(tt.id); got != tt.path {
				t.Errorf("PathName(%q) = %q, want %q", tt.id, got, tt.path)
			}
		})
	}
}
