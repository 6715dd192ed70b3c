package conversation

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// CurrentSchemaVersion is the version of the conversation database schema
const CurrentSchemaVersion = 1

// maxTitleLen bounds auto-derived conversation titles
const maxTitleLen = 80

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation
type Message struct {
	ID        int64
	Role      string
	Content   string
	CreatedAt time.Time
}

// Conversation is a stored conversation with its metadata
type Conversation struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// Store persists conversations and their messages in sqlite
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the conversation database at path
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode=WAL&_pragma=synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var exists int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if exists != 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := tx.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		CurrentSchemaVersion,
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return tx.Commit()
}

// Create starts a new empty conversation and returns its ID
func (s *Store) Create() (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.Exec(
		"INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, '', ?, ?)",
		id, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return id, nil
}

// Get returns a conversation's metadata
func (s *Store) Get(id string) (*Conversation, error) {
	conv := &Conversation{}
	var createdAt, updatedAt string

	err := s.db.QueryRow(`
		SELECT c.id, c.title, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c WHERE c.id = ?
	`, id).Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt, &conv.MessageCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("conversation not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	conv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	conv.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return conv, nil
}

// Append adds messages to a conversation in a single transaction.
// The first user message of an untitled conversation becomes its title.
// Either all messages land or none do.
func (s *Store) Append(conversationID string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM conversations WHERE id = ?", conversationID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("conversation not found: %s", conversationID)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)

	for _, msg := range messages {
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			return fmt.Errorf("invalid message role: %q", msg.Role)
		}
		if _, err := stmt.Exec(conversationID, msg.Role, msg.Content, now); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if _, err := tx.Exec(
		"UPDATE conversations SET updated_at = ? WHERE id = ?", now, conversationID,
	); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	for _, msg := range messages {
		if msg.Role != RoleUser {
			continue
		}
		if _, err := tx.Exec(
			"UPDATE conversations SET title = ? WHERE id = ? AND title = ''",
			deriveTitle(msg.Content), conversationID,
		); err != nil {
			return fmt.Errorf("failed to set title: %w", err)
		}
		break
	}

	return tx.Commit()
}

// Read returns up to limit of the most recent messages, oldest first.
// limit <= 0 returns all messages.
func (s *Store) Read(conversationID string, limit int) ([]Message, error) {
	query := `
		SELECT id, role, content, created_at FROM messages
		WHERE conversation_id = ? ORDER BY id DESC
	`
	args := []interface{}{conversationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	// Query walked newest-first to apply the limit; callers want oldest-first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Reset deletes all messages of a conversation, keeping the conversation row
func (s *Store) Reset(conversationID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.Exec(
		"UPDATE conversations SET title = '', updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), conversationID,
	); err != nil {
		return fmt.Errorf("failed to reset conversation: %w", err)
	}

	return tx.Commit()
}

// Delete removes a conversation and its messages
func (s *Store) Delete(conversationID string) error {
	_, err := s.db.Exec("DELETE FROM conversations WHERE id = ?", conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// List returns all conversations, most recently updated first
func (s *Store) List() ([]Conversation, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.title, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c ORDER BY c.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		conv.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return convs, nil
}

// Search returns conversations whose title or message content matches term
func (s *Store) Search(term string) ([]Conversation, error) {
	pattern := "%" + term + "%"
	rows, err := s.db.Query(`
		SELECT DISTINCT c.id, c.title, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.title LIKE ? OR m.content LIKE ?
		ORDER BY c.updated_at DESC
	`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		conv.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return convs, nil
}

// MessageCount returns the number of messages in a conversation
func (s *Store) MessageCount(conversationID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// deriveTitle turns the first user message into a short conversation title
func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen-3]) + "..."
	}
	return title
}
