package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"archivist/internal/config"
)

// Store persists the save record in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	timestampLayout         = time.RFC3339Nano
)

// Open initializes or connects to the state database under the configured
// state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.StatePath())
}

// OpenPath opens the state database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps the full-rewrite transactions strictly serial.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads the full save record.
func (s *Store) Load(ctx context.Context) (Record, error) {
	ctx = ensureContext(ctx)
	rec := NewRecord()
	err := retryOnBusy(ctx, func() error {
		rec = NewRecord()
		return s.load(ctx, &rec)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Store) load(ctx context.Context, rec *Record) error {
	rows, err := s.db.QueryContext(ctx, "SELECT session_id, artifact_id FROM artifacts")
	if err != nil {
		return fmt.Errorf("query artifacts: %w", err)
	}
	for rows.Next() {
		var sessionID, artifactID string
		if err := rows.Scan(&sessionID, &artifactID); err != nil {
			rows.Close()
			return fmt.Errorf("scan artifact: %w", err)
		}
		rec.Artifacts[sessionID] = artifactID
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("read artifacts: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, "SELECT session_id, title FROM titles")
	if err != nil {
		return fmt.Errorf("query titles: %w", err)
	}
	for rows.Next() {
		var sessionID, title string
		if err := rows.Scan(&sessionID, &title); err != nil {
			rows.Close()
			return fmt.Errorf("scan title: %w", err)
		}
		rec.Titles[sessionID] = title
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("read titles: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, session_id, room_id, account, highlight_path, superchat_path, created_at
		FROM comment_tasks ORDER BY position`)
	if err != nil {
		return fmt.Errorf("query comment tasks: %w", err)
	}
	for rows.Next() {
		var task CommentTask
		var created string
		if err := rows.Scan(&task.ID, &task.SessionID, &task.RoomID, &task.Account, &task.HighlightPath, &task.SuperChatPath, &created); err != nil {
			rows.Close()
			return fmt.Errorf("scan comment task: %w", err)
		}
		task.CreatedAt = parseTimestamp(created)
		rec.Comments = append(rec.Comments, task)
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("read comment tasks: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, session_id, room_id, account, artifact_id, track_id, variant, caption_path, created_at
		FROM caption_tasks ORDER BY position`)
	if err != nil {
		return fmt.Errorf("query caption tasks: %w", err)
	}
	for rows.Next() {
		var task CaptionTask
		var variant, created string
		if err := rows.Scan(&task.ID, &task.SessionID, &task.RoomID, &task.Account, &task.ArtifactID, &task.TrackID, &variant, &task.CaptionPath, &created); err != nil {
			rows.Close()
			return fmt.Errorf("scan caption task: %w", err)
		}
		parsed, err := ParseVariant(variant)
		if err != nil {
			rows.Close()
			return fmt.Errorf("caption task %s: %w", task.ID, err)
		}
		task.Variant = parsed
		task.CreatedAt = parseTimestamp(created)
		rec.Captions = append(rec.Captions, task)
	}
	if err := closeRows(rows); err != nil {
		return fmt.Errorf("read caption tasks: %w", err)
	}
	return nil
}

// Save rewrites the full save record in one transaction. It returns only after
// the transaction has committed.
func (s *Store) Save(ctx context.Context, rec Record) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error { return s.save(ctx, rec) })
}

func (s *Store) save(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"artifacts", "titles", "comment_tasks", "caption_tasks"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	now := time.Now().UTC().Format(timestampLayout)
	for sessionID, artifactID := range rec.Artifacts {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO artifacts (session_id, artifact_id, updated_at) VALUES (?, ?, ?)",
			sessionID, artifactID, now,
		); err != nil {
			return fmt.Errorf("insert artifact %s: %w", sessionID, err)
		}
	}
	for sessionID, title := range rec.Titles {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO titles (session_id, title) VALUES (?, ?)",
			sessionID, title,
		); err != nil {
			return fmt.Errorf("insert title %s: %w", sessionID, err)
		}
	}
	for pos, task := range rec.Comments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO comment_tasks (id, position, session_id, room_id, account, highlight_path, superchat_path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, pos, task.SessionID, task.RoomID, task.Account, task.HighlightPath, task.SuperChatPath, formatTimestamp(task.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert comment task %s: %w", task.ID, err)
		}
	}
	for pos, task := range rec.Captions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO caption_tasks (id, position, session_id, room_id, account, artifact_id, track_id, variant, caption_path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, pos, task.SessionID, task.RoomID, task.Account, task.ArtifactID, task.TrackID, task.Variant.String(), task.CaptionPath, formatTimestamp(task.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert caption task %s: %w", task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	iterErr := rows.Err()
	closeErr := rows.Close()
	if iterErr != nil {
		return iterErr
	}
	return closeErr
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.UTC().Format(timestampLayout)
}

func parseTimestamp(value string) time.Time {
	ts, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
