// Package store persists projects, graph records, documents, and approval
// suggestions in SQLite. One database file per installation; FTS5 virtual
// tables back lexical search.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the single persistence collaborator for the core. It
// implements graph.Store, policy.EntityResolver, graph.RegistrySource,
// retrieval.LexicalSearcher, and retrieval.ChunkSource.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at basePath, or an
// in-memory database when basePath is ":memory:".
func NewSQLiteStore(basePath string) (*SQLiteStore, error) {
	var dbPath string
	if basePath == ":memory:" {
		dbPath = ":memory:"
	} else {
		dbPath = filepath.Join(basePath, "mythos.db")
		if err := os.MkdirAll(basePath, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		template_id TEXT NOT NULL DEFAULT 'fiction',
		registry_override TEXT,             -- JSON OverrideDoc, NULL when none
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS project_members (
		project_id TEXT NOT NULL,
		actor TEXT NOT NULL,
		role TEXT NOT NULL,                 -- owner, editor, viewer
		PRIMARY KEY (project_id, actor),
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		canonical_name TEXT NOT NULL,
		properties TEXT,                    -- JSON object
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	-- Aliases in their own table so canonical lookup stays a plain index scan.
	CREATE TABLE IF NOT EXISTS entity_aliases (
		entity_id TEXT NOT NULL,
		alias TEXT NOT NULL,
		canonical_alias TEXT NOT NULL,
		PRIMARY KEY (entity_id, canonical_alias),
		FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS relationships (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		type TEXT NOT NULL,
		bidirectional INTEGER NOT NULL DEFAULT 0,
		strength REAL,
		notes TEXT NOT NULL DEFAULT '',
		metadata TEXT,                      -- JSON object
		created_at TEXT NOT NULL,
		UNIQUE (project_id, source_id, target_id, type),
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
		FOREIGN KEY (source_id) REFERENCES entities(id) ON DELETE CASCADE,
		FOREIGN KEY (target_id) REFERENCES entities(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		doc_type TEXT NOT NULL DEFAULT '',  -- chapter, note, outline, ...
		created_at TEXT NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS document_chunks (
		document_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (document_id, chunk_index),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',  -- style, canon, preference, ...
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		target_kind TEXT NOT NULL,
		target_id TEXT NOT NULL,
		changed_fields TEXT,                -- JSON array
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS embed_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		kind TEXT NOT NULL,                 -- entity, relationship, document
		ref_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS suggestions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		tool_call_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		approval_type TEXT NOT NULL,
		danger TEXT NOT NULL,
		risk_level TEXT NOT NULL DEFAULT '',
		approval_reasons TEXT,              -- JSON array
		preview TEXT,                       -- JSON Preview
		proposed_patch TEXT,                -- JSON object
		actor TEXT NOT NULL,
		stream_id TEXT NOT NULL,
		thread_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entities_canonical ON entities(project_id, canonical_name);
	CREATE INDEX IF NOT EXISTS idx_entity_aliases_canonical ON entity_aliases(canonical_alias);
	CREATE INDEX IF NOT EXISTS idx_relationships_pair ON relationships(project_id, source_id, target_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_project ON document_chunks(project_id);
	CREATE INDEX IF NOT EXISTS idx_activities_project ON activities(project_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_embed_queue_status ON embed_queue(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions(project_id, status);

	-- FTS5 for lexical search (hybrid with vector similarity)
	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		document_id UNINDEXED,
		project_id UNINDEXED,
		chunk_index UNINDEXED,
		text
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS entities_fts USING fts5(
		id UNINDEXED,
		project_id UNINDEXED,
		name,
		aliases,
		notes
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
		id UNINDEXED,
		project_id UNINDEXED,
		content
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	// SQLite has no IF NOT EXISTS for triggers; check sqlite_master first.
	triggers := []struct {
		name string
		sql  string
	}{
		{
			name: "chunks_fts_ai",
			sql: `CREATE TRIGGER chunks_fts_ai AFTER INSERT ON document_chunks BEGIN
				INSERT INTO chunks_fts(document_id, project_id, chunk_index, text)
				VALUES (NEW.document_id, NEW.project_id, NEW.chunk_index, NEW.text);
			END`,
		},
		{
			name: "chunks_fts_ad",
			sql: `CREATE TRIGGER chunks_fts_ad AFTER DELETE ON document_chunks BEGIN
				DELETE FROM chunks_fts WHERE document_id = OLD.document_id AND chunk_index = OLD.chunk_index;
			END`,
		},
		{
			name: "memories_fts_ai",
			sql: `CREATE TRIGGER memories_fts_ai AFTER INSERT ON memories BEGIN
				INSERT INTO memories_fts(id, project_id, content)
				VALUES (NEW.id, NEW.project_id, NEW.content);
			END`,
		},
		{
			name: "memories_fts_ad",
			sql: `CREATE TRIGGER memories_fts_ad AFTER DELETE ON memories BEGIN
				DELETE FROM memories_fts WHERE id = OLD.id;
			END`,
		},
	}
	for _, t := range triggers {
		var count int
		if err := s.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='trigger' AND name=?", t.name,
		).Scan(&count); err != nil {
			return fmt.Errorf("check trigger %s: %w", t.name, err)
		}
		if count == 0 {
			if _, err := s.db.Exec(t.sql); err != nil {
				return fmt.Errorf("create trigger %s: %w", t.name, err)
			}
		}
	}

	return nil
}

// sanitizeFTSQuery strips FTS5 operators and joins the remaining words with
// OR so partial matches still rank.
func sanitizeFTSQuery(query string) string {
	replacer := strings.NewReplacer(
		`"`, " ", `^`, " ", `:`, " ", `(`, " ", `)`, " ",
		`{`, " ", `}`, " ", `[`, " ", `]`, " ", `-`, " ", `+`, " ",
		`?`, " ", `!`, " ", `.`, " ", `,`, " ", `;`, " ", `*`, " ",
	)
	words := strings.Fields(replacer.Replace(strings.ToLower(query)))
	var kept []string
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " OR ")
}
