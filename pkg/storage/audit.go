package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/small-frappuccino/guildsetup/pkg/log"
)

// Audit actions recorded by the handlers.
const (
	ActionChannelCreated  = "channel_created"
	ActionChannelDeleted  = "channel_deleted"
	ActionRoleGranted     = "role_granted"
	ActionRoleRevoked     = "role_revoked"
	ActionBindingUpserted = "binding_upserted"
	ActionBroadcastSent   = "broadcast_sent"
)

// Event is one audit record: who did what to what, in which guild.
type Event struct {
	GuildID   string
	Actor     string
	Action    string
	Subject   string
	Detail    string
	CreatedAt time.Time
}

// Store is an append-mostly audit log backed by embedded SQLite.
// It uses modernc.org/sqlite for CGO-less builds.
type Store struct {
	dbPath string
	db     *sql.DB
}

// NewStore creates a new Store pointing to dbPath. Call Init() before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Init opens the SQLite database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	// Pragmas for durability and concurrency
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return fmt.Errorf("set WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL;`); err != nil {
		_ = db.Close()
		return fmt.Errorf("set synchronous: %w", err)
	}

	if _, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS audit_events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            guild_id TEXT NOT NULL,
            actor TEXT NOT NULL,
            action TEXT NOT NULL,
            subject TEXT NOT NULL,
            detail TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMP NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_audit_guild_time ON audit_events (guild_id, created_at DESC);
    `); err != nil {
		_ = db.Close()
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one audit event. A zero CreatedAt is stamped with the
// current time.
func (s *Store) Record(e Event) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO audit_events (guild_id, actor, action, subject, detail, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		e.GuildID, e.Actor, e.Action, e.Subject, e.Detail, e.CreatedAt.UTC(),
	)
	return err
}

// RecordBestEffort appends an event and only logs on failure. Handlers use
// this; an audit write must never fail a user action.
func (s *Store) RecordBestEffort(e Event) {
	if s == nil {
		return
	}
	if err := s.Record(e); err != nil {
		log.Storage().Warn("Failed to record audit event",
			"guildID", e.GuildID, "action", e.Action, "err", err)
	}
}

// RecentEvents returns up to limit events for a guild, newest first.
func (s *Store) RecentEvents(guildID string, limit int) ([]Event, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT guild_id, actor, action, subject, detail, created_at
         FROM audit_events WHERE guild_id = ?
         ORDER BY created_at DESC, id DESC LIMIT ?`,
		guildID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.GuildID, &e.Actor, &e.Action, &e.Subject, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
