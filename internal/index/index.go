// Package index records which citations each processed document links to.
//
// The store is a SQLite database opened through core/sqlite, so the driver
// is modernc.org/sqlite by default and mattn/go-sqlite3 under the
// cgo_sqlite build tag. Documents are keyed by path and skipped when their
// BLAKE3 content hash has not changed since the last run.
package index

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/reflink/core/cas"
	"github.com/FocuswithJustin/reflink/core/citation"
	rerrors "github.com/FocuswithJustin/reflink/core/errors"
	"github.com/FocuswithJustin/reflink/core/sqlite"
	"github.com/FocuswithJustin/reflink/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	source     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL UNIQUE,
	hash       TEXT NOT NULL,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	indexed_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS citations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	book        TEXT NOT NULL,
	chapter     INTEGER NOT NULL,
	verse       INTEGER,
	verse_end   INTEGER,
	version     TEXT,
	href        TEXT NOT NULL,
	display     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS citations_book ON citations(book);
CREATE INDEX IF NOT EXISTS citations_document ON citations(document_id);
`

// Index is a citation store. It is safe for concurrent use.
type Index struct {
	db  *sql.DB
	now func() time.Time
}

// Run identifies one indexing pass.
type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Source    string    `json:"source"`
}

// BookCount is the number of recorded citations of one book.
type BookCount struct {
	Book      string `json:"book"`
	Citations int    `json:"citations"`
	Documents int    `json:"documents"`
}

// Occurrence is one recorded citation together with the document it was
// found in.
type Occurrence struct {
	Path     string            `json:"path"`
	Citation citation.Citation `json:"citation"`
	Href     string            `json:"href"`
	Display  string            `json:"display"`
}

// Open opens or creates the index at path. ":memory:" gives a private
// in-memory index.
func Open(path string) (*Index, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, rerrors.NewIO("open index", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, rerrors.NewIO("create index schema", path, err)
	}
	logOpen(path, false)
	return &Index{db: db, now: time.Now}, nil
}

// OpenReadOnly opens an existing index for queries. Record and BeginRun
// fail on it.
func OpenReadOnly(path string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, rerrors.NewIO("open index", path, err)
	}
	db, err := sqlite.OpenReadOnly(path)
	if err == nil {
		err = db.Ping()
	}
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, rerrors.NewIO("open index", path, err)
	}
	logOpen(path, true)
	return &Index{db: db, now: time.Now}, nil
}

func logOpen(path string, readOnly bool) {
	info := sqlite.GetInfo()
	logging.Debug("index_open", "path", path, "read_only", readOnly,
		"driver", info.DriverName, "package", info.Package)
}

// Close releases the database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// BeginRun registers a new indexing pass over source.
func (ix *Index) BeginRun(ctx context.Context, source string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		StartedAt: ix.now().UTC(),
		Source:    source,
	}
	_, err := ix.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, source) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.Format(time.RFC3339Nano), run.Source)
	if err != nil {
		return Run{}, rerrors.Wrap(err, "begin run")
	}
	return run, nil
}

// Record stores links, every citation link in the document at path, and
// replaces what was stored for it before. content is the
// rewritten document, so a later pass over an already linked file hashes
// the same. When the stored hash for path matches content, nothing is
// written and Record returns false.
func (ix *Index) Record(ctx context.Context, run Run, path string, content []byte, links []citation.Segment) (bool, error) {
	hash := cas.Hash(content)

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return false, rerrors.Wrap(err, "record "+path)
	}
	defer tx.Rollback()

	var docID, oldHash string
	err = tx.QueryRowContext(ctx, `SELECT id, hash FROM documents WHERE path = ?`, path).Scan(&docID, &oldHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		docID = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (id, path, hash, run_id, indexed_at) VALUES (?, ?, ?, ?, ?)`,
			docID, path, hash, run.ID, ix.now().UTC().Format(time.RFC3339Nano))
	case err != nil:
	case oldHash == hash:
		return false, nil
	default:
		if _, err = tx.ExecContext(ctx, `DELETE FROM citations WHERE document_id = ?`, docID); err == nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE documents SET hash = ?, run_id = ?, indexed_at = ? WHERE id = ?`,
				hash, run.ID, ix.now().UTC().Format(time.RFC3339Nano), docID)
		}
	}
	if err != nil {
		return false, rerrors.Wrap(err, "record "+path)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO citations (document_id, book, chapter, verse, verse_end, version, href, display)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return false, rerrors.Wrap(err, "record "+path)
	}
	defer stmt.Close()

	for _, l := range links {
		if l.Link == nil {
			continue
		}
		c := l.Citation
		if _, err := stmt.ExecContext(ctx, docID, c.Book, c.Chapter,
			nullInt(c.Verse), nullInt(c.VerseEnd), nullString(string(c.Version)),
			l.Link.Href, l.Link.DisplayText); err != nil {
			return false, rerrors.Wrap(err, "record "+path)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, rerrors.Wrap(err, "record "+path)
	}
	logging.Debug("index_document", "run_id", run.ID, "path", path, "citations", len(links))
	return true, nil
}

// BookCounts returns the most cited books, most citations first. A limit
// of zero or less returns every book.
func (ix *Index) BookCounts(ctx context.Context, limit int) ([]BookCount, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := ix.db.QueryContext(ctx, `
		SELECT book, COUNT(*), COUNT(DISTINCT document_id)
		FROM citations
		GROUP BY book
		ORDER BY COUNT(*) DESC, book ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, rerrors.Wrap(err, "book counts")
	}
	defer rows.Close()

	var out []BookCount
	for rows.Next() {
		var bc BookCount
		if err := rows.Scan(&bc.Book, &bc.Citations, &bc.Documents); err != nil {
			return nil, rerrors.Wrap(err, "book counts")
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

// Occurrences lists every recorded citation of book, ordered by document
// path and then by chapter and verse.
func (ix *Index) Occurrences(ctx context.Context, book string) ([]Occurrence, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT d.path, c.book, c.chapter, c.verse, c.verse_end, c.version, c.href, c.display
		FROM citations c JOIN documents d ON d.id = c.document_id
		WHERE c.book = ?
		ORDER BY d.path, c.chapter, COALESCE(c.verse, 0), c.id`, book)
	if err != nil {
		return nil, rerrors.Wrap(err, "occurrences of "+book)
	}
	defer rows.Close()

	var out []Occurrence
	for rows.Next() {
		var (
			o               Occurrence
			verse, verseEnd sql.NullInt64
			version         sql.NullString
		)
		if err := rows.Scan(&o.Path, &o.Citation.Book, &o.Citation.Chapter,
			&verse, &verseEnd, &version, &o.Href, &o.Display); err != nil {
			return nil, rerrors.Wrap(err, "occurrences of "+book)
		}
		o.Citation.Verse = int(verse.Int64)
		o.Citation.VerseEnd = int(verseEnd.Int64)
		o.Citation.Version = citation.Version(version.String)
		out = append(out, o)
	}
	return out, rows.Err()
}

// DocumentCount returns how many documents the index holds.
func (ix *Index) DocumentCount(ctx context.Context) (int, error) {
	var n int
	err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
