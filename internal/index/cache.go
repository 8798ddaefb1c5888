package index

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/gebo/internal/models"
)

const cacheSchemaSQL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	id       TEXT PRIMARY KEY,
	path     TEXT NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	mtime    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS edges (
	source     TEXT NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	unresolved TEXT NOT NULL DEFAULT '',
	section    TEXT NOT NULL DEFAULT '',
	kind       INTEGER NOT NULL DEFAULT 0,
	line       INTEGER NOT NULL DEFAULT 0,
	context    TEXT NOT NULL DEFAULT '',
	ambiguous  INTEGER NOT NULL DEFAULT 0,
	raw        TEXT NOT NULL DEFAULT '',
	pos        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source, pos);
`

// Cache persists the latest committed snapshot keyed by a corpus
// fingerprint, so a restart over an unchanged vault skips the full
// rebuild. It is consulted once at startup and written after rebuilds;
// a stale or missing cache always degrades to rebuilding.
type Cache struct {
	conn *sql.DB
}

// OpenCache opens (or creates) the snapshot cache database.
func OpenCache(dsn string) (*Cache, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open cache: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping cache: %w", err)
	}
	if _, err := conn.Exec(cacheSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply cache schema: %w", err)
	}
	return &Cache{conn: conn}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.conn.Close()
}

// Save replaces the cached snapshot within one transaction.
func (c *Cache) Save(snap *Snapshot, fingerprint string) error {
	tx, err := c.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: cache begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, _ = tx.Exec(`DELETE FROM notes`)
	_, _ = tx.Exec(`DELETE FROM edges`)
	if _, err := tx.Exec(
		`INSERT INTO meta (key, value) VALUES ('fingerprint', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fingerprint,
	); err != nil {
		return fmt.Errorf("index: cache save fingerprint: %w", err)
	}

	noteStmt, err := tx.Prepare(`INSERT INTO notes (id, path, checksum, mtime) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: cache prepare notes: %w", err)
	}
	defer noteStmt.Close()
	for _, rec := range snap.Records {
		if _, err := noteStmt.Exec(string(rec.ID), rec.Path, rec.Checksum, rec.ModTime.UnixNano()); err != nil {
			return fmt.Errorf("index: cache insert note: %w", err)
		}
	}

	edgeStmt, err := tx.Prepare(`
		INSERT INTO edges (source, target, unresolved, section, kind, line, context, ambiguous, raw, pos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: cache prepare edges: %w", err)
	}
	defer edgeStmt.Close()
	for id, edges := range snap.Outgoing {
		for pos, e := range edges {
			if _, err := edgeStmt.Exec(
				string(id), string(e.Target), e.Unresolved, e.Section,
				int(e.Kind), e.Line, e.Context, boolToInt(e.Ambiguous), e.RawText, pos,
			); err != nil {
				return fmt.Errorf("index: cache insert edge: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Load returns the cached snapshot when the stored fingerprint matches,
// or nil when the cache is empty or stale. Only records and outgoing
// edges are materialized; incoming sets and placeholder buckets are
// re-derived when the snapshot is installed.
func (c *Cache) Load(fingerprint string) (*Snapshot, error) {
	var stored string
	err := c.conn.QueryRow(`SELECT value FROM meta WHERE key = 'fingerprint'`).Scan(&stored)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: cache read fingerprint: %w", err)
	}
	if stored != fingerprint {
		return nil, nil
	}

	snap := emptySnapshot()

	rows, err := c.conn.Query(`SELECT id, path, checksum, mtime FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: cache read notes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, path, cs string
		var mtime int64
		if err := rows.Scan(&id, &path, &cs, &mtime); err != nil {
			return nil, err
		}
		snap.Records[models.NoteID(id)] = models.NoteRecord{
			ID:       models.NoteID(id),
			Path:     path,
			Checksum: cs,
			ModTime:  time.Unix(0, mtime),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := c.conn.Query(`
		SELECT source, target, unresolved, section, kind, line, context, ambiguous, raw
		FROM edges ORDER BY source, pos`)
	if err != nil {
		return nil, fmt.Errorf("index: cache read edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var source, target, unresolved, section, context, raw string
		var kind, line, ambiguous int
		if err := edgeRows.Scan(&source, &target, &unresolved, &section, &kind, &line, &context, &ambiguous, &raw); err != nil {
			return nil, err
		}
		id := models.NoteID(source)
		snap.Outgoing[id] = append(snap.Outgoing[id], models.ResolvedLink{
			Source:     id,
			Target:     models.NoteID(target),
			Unresolved: unresolved,
			Section:    section,
			Kind:       models.RefKind(kind),
			Line:       line,
			Context:    context,
			Ambiguous:  ambiguous != 0,
			RawText:    raw,
		})
	}
	return snap, edgeRows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
