package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withForeignKeys(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// withForeignKeys enables ON DELETE CASCADE for every pooled connection.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY, -- UUID
        resume_text TEXT NOT NULL,
        jd_text TEXT NOT NULL,
        match_score REAL,
        strengths_json TEXT NOT NULL DEFAULT '[]',
        gaps_json TEXT NOT NULL DEFAULT '[]',
        insights TEXT NOT NULL DEFAULT '',
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        doc_type TEXT NOT NULL DEFAULT 'resume',
        chunk_index INTEGER NOT NULL,
        text TEXT NOT NULL,
        embedding_json TEXT NOT NULL, -- JSON array of float32
        FOREIGN KEY (session_id) REFERENCES sessions (id) ON DELETE CASCADE
    );
    CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks (session_id, id);

    CREATE TABLE IF NOT EXISTS messages (
        seq INTEGER PRIMARY KEY AUTOINCREMENT, -- total order within the log
        id TEXT UNIQUE NOT NULL, -- UUID
        session_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        question TEXT NOT NULL DEFAULT '',
        answer TEXT NOT NULL DEFAULT '',
        retrieved_json TEXT NOT NULL DEFAULT '[]',
        created_at DATETIME NOT NULL,
        FOREIGN KEY (session_id) REFERENCES sessions (id) ON DELETE CASCADE
    );
    CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, seq);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Session methods

// CreateSessionWithChunks inserts the session and all of its chunks in one
// transaction, so a failed ingestion never leaves a partial session behind.
func (s *SQLiteStore) CreateSessionWithChunks(ctx context.Context, session *Session, chunks []Chunk) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	strengths, err := marshalStrings(session.Strengths)
	if err != nil {
		return err
	}
	gaps, err := marshalStrings(session.Gaps)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	_, err = tx.ExecContext(ctx,
		"INSERT INTO sessions (id, resume_text, jd_text, match_score, strengths_json, gaps_json, insights, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		session.ID, session.ResumeText, session.JobDescription, session.MatchScore, strengths, gaps, session.Insights, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks (session_id, doc_type, chunk_index, text, embedding_json) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		c := &chunks[i]
		c.SessionID = session.ID
		embeddingBytes, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		res, err := stmt.ExecContext(ctx, c.SessionID, string(c.DocType), c.Index, c.Text, string(embeddingBytes))
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s/%d: %w", c.DocType, c.Index, err)
		}
		c.ID, _ = res.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	var score sql.NullFloat64
	var strengths, gaps string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, resume_text, jd_text, match_score, strengths_json, gaps_json, insights, created_at FROM sessions WHERE id = ?", id).
		Scan(&session.ID, &session.ResumeText, &session.JobDescription, &score, &strengths, &gaps, &session.Insights, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if score.Valid {
		session.MatchScore = &score.Float64
	}
	if session.Strengths, err = unmarshalStrings(strengths); err != nil {
		return nil, err
	}
	if session.Gaps, err = unmarshalStrings(gaps); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes the session; chunks and messages cascade.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Chunk methods (for RAG)

// GetChunks returns the session's chunks in insertion order.
func (s *SQLiteStore) GetChunks(ctx context.Context, sessionID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, doc_type, chunk_index, text, embedding_json FROM chunks WHERE session_id = ? ORDER BY id ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		var docType, embeddingJSON string
		if err := rows.Scan(&chunk.ID, &chunk.SessionID, &docType, &chunk.Index, &chunk.Text, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		chunk.DocType = ParseDocType(docType)
		if err := json.Unmarshal([]byte(embeddingJSON), &chunk.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for chunk %d: %w", chunk.ID, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of chunks per document type.
func (s *SQLiteStore) CountChunks(ctx context.Context, sessionID string) (map[DocType]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc_type, COUNT(*) FROM chunks WHERE session_id = ? GROUP BY doc_type", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	defer rows.Close()

	counts := make(map[DocType]int)
	for rows.Next() {
		var docType string
		var n int
		if err := rows.Scan(&docType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan chunk count: %w", err)
		}
		counts[ParseDocType(docType)] += n
	}
	return counts, rows.Err()
}

// Message methods

func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	msg.CreatedAt = time.Now().UTC()
	if msg.Retrieved == nil {
		msg.Retrieved = []RetrievedChunk{}
	}

	retrieved, err := json.Marshal(msg.Retrieved)
	if err != nil {
		return fmt.Errorf("failed to marshal retrieved chunks: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, session_id, role, question, answer, retrieved_json, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.SessionID, msg.Role, msg.Question, msg.Answer, string(retrieved), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	msg.Seq, _ = res.LastInsertId()
	return nil
}

// GetMessages returns the whole log, oldest first.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	return s.queryMessages(ctx,
		"SELECT seq, id, session_id, role, question, answer, retrieved_json, created_at FROM messages WHERE session_id = ? ORDER BY seq ASC",
		sessionID)
}

// GetLastNMessages returns up to n entries written before beforeSeq, most recent first.
// A beforeSeq of zero means no upper bound.
func (s *SQLiteStore) GetLastNMessages(ctx context.Context, sessionID string, n int, beforeSeq int64) ([]Message, error) {
	if beforeSeq <= 0 {
		return s.queryMessages(ctx,
			"SELECT seq, id, session_id, role, question, answer, retrieved_json, created_at FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?",
			sessionID, n)
	}
	return s.queryMessages(ctx,
		"SELECT seq, id, session_id, role, question, answer, retrieved_json, created_at FROM messages WHERE session_id = ? AND seq < ? ORDER BY seq DESC LIMIT ?",
		sessionID, beforeSeq, n)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var retrieved string
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.SessionID, &msg.Role, &msg.Question, &msg.Answer, &retrieved, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if err := json.Unmarshal([]byte(retrieved), &msg.Retrieved); err != nil {
			return nil, fmt.Errorf("failed to unmarshal retrieved chunks for message %s: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func marshalStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(b), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	list := []string{}
	if raw == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal string list: %w", err)
	}
	return list, nil
}
