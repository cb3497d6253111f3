// Package sqlite provides a SQLite implementation of the Store interface
// (component C1). SQLite is a lightweight, file-based backend suitable for
// local development and single-node deployments. Vectors and free-form
// metadata are stored as JSON strings in TEXT columns, and similarity
// search uses in-memory cosine similarity over the matching rows — there
// is no native vector index support.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/storage"
)

// Client implements core.Store using SQLite as the backend.
type Client struct {
	db *sql.DB
}

// Config contains configuration for creating a SQLite Store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewClient opens (creating if necessary) a SQLite database and ensures the
// schema exists.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite.NewClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite.NewClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite.NewClient: %w", err)
	}

	client := &Client{db: db}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE,
			name TEXT,
			metadata TEXT,
			is_active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			type TEXT,
			importance INTEGER DEFAULT 2,
			tags TEXT,
			entity_ids TEXT,
			metadata TEXT,
			embedding TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME,
			is_archived INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT,
			type TEXT,
			description TEXT,
			company TEXT,
			title TEXT,
			email TEXT,
			phone TEXT,
			website TEXT,
			importance INTEGER DEFAULT 2,
			tags TEXT,
			notes TEXT,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_user ON entities(user_id)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_name TEXT,
			content TEXT,
			context TEXT,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS usage_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider TEXT,
			model TEXT,
			tokens INTEGER,
			cost_usd REAL,
			operation_type TEXT,
			date TEXT,
			timestamp DATETIME,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_user_date ON usage_records(user_id, date)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite.initTables: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// CreateIndex is a no-op: SQLite has no native vector index, so similarity
// search always does a full table scan with in-memory scoring.
func (c *Client) CreateIndex(ctx context.Context, cfg *core.VectorIndexConfig) error {
	return nil
}

// --- Users ---

func (c *Client) CreateUser(ctx context.Context, u *core.User) (*core.User, error) {
	metadataJSON, err := json.Marshal(u.Metadata)
	if err != nil {
		return nil, fmt.Errorf("sqlite.CreateUser: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, metadata, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, string(metadataJSON), u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite.CreateUser: %w", err)
	}
	return u, nil
}

func (c *Client) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, email, name, metadata, is_active, created_at, updated_at
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, email, name, metadata, is_active, created_at, updated_at
		FROM users WHERE email = ?
	`, email)
	return scanUser(row)
}

func (c *Client) UpdateUser(ctx context.Context, id string, patch core.UserPatch) (*core.User, error) {
	sets, args := []string{"updated_at = ?"}, []interface{}{time.Now()}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Metadata != nil {
		b, err := json.Marshal(patch.Metadata)
		if err != nil {
			return nil, fmt.Errorf("sqlite.UpdateUser: %w", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, string(b))
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *patch.IsActive)
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = ?", joinSets(sets))
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite.UpdateUser: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, core.ErrNotFound
	}
	return c.GetUserByID(ctx, id)
}

func scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	var metadataStr string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &metadataStr, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite.scanUser: %w", err)
	}
	if metadataStr != "" {
		_ = json.Unmarshal([]byte(metadataStr), &u.Metadata)
	}
	return &u, nil
}

// --- Memories ---

func (c *Client) CreateMemory(ctx context.Context, m *core.Memory) (*core.Memory, error) {
	tagsJSON, _ := json.Marshal(m.Tags)
	entityIDsJSON, _ := json.Marshal(m.EntityIDs)
	metadataJSON, _ := json.Marshal(m.Metadata)
	embeddingJSON, _ := json.Marshal(m.Embedding)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO memories
		(id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		 created_at, updated_at, expires_at, is_archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.UserID, m.Title, m.Content, string(m.Type), int(m.Importance),
		string(tagsJSON), string(entityIDsJSON), string(metadataJSON), string(embeddingJSON),
		m.CreatedAt, m.UpdatedAt, m.ExpiresAt, m.IsArchived)
	if err != nil {
		return nil, fmt.Errorf("sqlite.CreateMemory: %w", err)
	}
	return m, nil
}

func (c *Client) GetMemoryByID(ctx context.Context, userID, id string) (*core.Memory, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories WHERE id = ? AND user_id = ?
	`, id, userID)
	return scanMemoryRow(row)
}

func (c *Client) UpdateMemory(ctx context.Context, userID, id string, patch core.MemoryPatch) (*core.Memory, error) {
	sets, args := []string{"updated_at = ?"}, []interface{}{time.Now()}
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, string(*patch.Type))
	}
	if patch.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, int(*patch.Importance))
	}
	if patch.Tags != nil {
		b, _ := json.Marshal(*patch.Tags)
		sets = append(sets, "tags = ?")
		args = append(args, string(b))
	}
	if patch.EntityIDs != nil {
		b, _ := json.Marshal(*patch.EntityIDs)
		sets = append(sets, "entity_ids = ?")
		args = append(args, string(b))
	}
	if patch.Metadata != nil {
		b, err := json.Marshal(patch.Metadata)
		if err != nil {
			return nil, fmt.Errorf("sqlite.UpdateMemory: %w", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, string(b))
	}
	if patch.Embedding != nil {
		b, _ := json.Marshal(*patch.Embedding)
		sets = append(sets, "embedding = ?")
		args = append(args, string(b))
	}
	if patch.IsArchived != nil {
		sets = append(sets, "is_archived = ?")
		args = append(args, *patch.IsArchived)
	}
	if patch.ExpiresAt != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, *patch.ExpiresAt)
	}

	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ? AND user_id = ?", joinSets(sets))
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite.UpdateMemory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, core.ErrNotFound
	}
	return c.GetMemoryByID(ctx, userID, id)
}

func (c *Client) DeleteMemory(ctx context.Context, userID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite.DeleteMemory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (c *Client) ListMemories(ctx context.Context, userID string, limit int) ([]*core.Memory, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListMemories: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemoryRows(rows)
}

// SearchMemoriesLexical does a case-insensitive substring match over title
// and content (spec §4.5's lexical fallback path).
func (c *Client) SearchMemoriesLexical(ctx context.Context, userID, query string, limit int) ([]*core.Memory, error) {
	like := "%" + query + "%"
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories
		WHERE user_id = ? AND (title LIKE ? COLLATE NOCASE OR content LIKE ? COLLATE NOCASE)
		ORDER BY created_at DESC LIMIT ?
	`, userID, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite.SearchMemoriesLexical: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemoryRows(rows)
}

// SearchMemoriesByMetadata implements spec §4.5's field:value / metadata.path:value
// query grammar. SQLite has no JSON path index, so this scans the user's
// memories and delegates matching to the shared field-alias predicate.
func (c *Client) SearchMemoriesByMetadata(ctx context.Context, userID, field, value string, limit int) ([]*core.Memory, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite.SearchMemoriesByMetadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	all, err := scanMemoryRows(rows)
	if err != nil {
		return nil, err
	}

	var matched []*core.Memory
	for _, m := range all {
		if storage.MatchesFieldValue(m, field, value) {
			matched = append(matched, m)
			if limit > 0 && len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}

func (c *Client) GetMemoriesWithEmbedding(ctx context.Context, userID string, limit int) ([]*core.Memory, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories WHERE user_id = ? AND embedding IS NOT NULL AND embedding != '' AND embedding != 'null'
		ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite.GetMemoriesWithEmbedding: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemoryRows(rows)
}

func (c *Client) GetMemoriesMissingEmbedding(ctx context.Context, userID string, limit int) ([]*core.Memory, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories WHERE user_id = ? AND (embedding IS NULL OR embedding = '' OR embedding = 'null')
		ORDER BY created_at ASC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite.GetMemoriesMissingEmbedding: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemoryRows(rows)
}

func scanMemoryRow(row *sql.Row) (*core.Memory, error) {
	var m core.Memory
	var typ string
	var importance int
	var tagsStr, entityIDsStr, metadataStr, embeddingStr string
	var expiresAt sql.NullTime

	err := row.Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &typ, &importance,
		&tagsStr, &entityIDsStr, &metadataStr, &embeddingStr,
		&m.CreatedAt, &m.UpdatedAt, &expiresAt, &m.IsArchived)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite.scanMemoryRow: %w", err)
	}
	m.Type = core.MemoryType(typ)
	m.Importance = core.Importance(importance)
	if tagsStr != "" {
		_ = json.Unmarshal([]byte(tagsStr), &m.Tags)
	}
	if entityIDsStr != "" {
		_ = json.Unmarshal([]byte(entityIDsStr), &m.EntityIDs)
	}
	if metadataStr != "" {
		_ = json.Unmarshal([]byte(metadataStr), &m.Metadata)
	}
	if embeddingStr != "" && embeddingStr != "null" {
		_ = json.Unmarshal([]byte(embeddingStr), &m.Embedding)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		m.ExpiresAt = &t
	}
	return &m, nil
}

func scanMemoryRows(rows *sql.Rows) ([]*core.Memory, error) {
	var memories []*core.Memory
	for rows.Next() {
		var m core.Memory
		var typ string
		var importance int
		var tagsStr, entityIDsStr, metadataStr, embeddingStr string
		var expiresAt sql.NullTime

		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &typ, &importance,
			&tagsStr, &entityIDsStr, &metadataStr, &embeddingStr,
			&m.CreatedAt, &m.UpdatedAt, &expiresAt, &m.IsArchived); err != nil {
			return nil, fmt.Errorf("sqlite.scanMemoryRows: %w", err)
		}
		m.Type = core.MemoryType(typ)
		m.Importance = core.Importance(importance)
		if tagsStr != "" {
			_ = json.Unmarshal([]byte(tagsStr), &m.Tags)
		}
		if entityIDsStr != "" {
			_ = json.Unmarshal([]byte(entityIDsStr), &m.EntityIDs)
		}
		if metadataStr != "" {
			_ = json.Unmarshal([]byte(metadataStr), &m.Metadata)
		}
		if embeddingStr != "" && embeddingStr != "null" {
			_ = json.Unmarshal([]byte(embeddingStr), &m.Embedding)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			m.ExpiresAt = &t
		}
		memories = append(memories, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memories, nil
}

// --- Entities ---

func (c *Client) CreateEntity(ctx context.Context, e *core.Entity) (*core.Entity, error) {
	tagsJSON, _ := json.Marshal(e.Tags)
	metadataJSON, _ := json.Marshal(e.Metadata)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO entities
		(id, user_id, name, type, description, company, title, email, phone, website,
		 importance, tags, notes, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Name, string(e.Type), e.Description, e.Company, e.Title, e.Email, e.Phone, e.Website,
		int(e.Importance), string(tagsJSON), e.Notes, string(metadataJSON), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite.CreateEntity: %w", err)
	}
	return e, nil
}

func (c *Client) GetEntityByID(ctx context.Context, userID, id string) (*core.Entity, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, type, description, company, title, email, phone, website,
		       importance, tags, notes, metadata, created_at, updated_at
		FROM entities WHERE id = ? AND user_id = ?
	`, id, userID)
	return scanEntityRow(row)
}

func (c *Client) UpdateEntity(ctx context.Context, userID, id string, patch core.EntityPatch) (*core.Entity, error) {
	sets, args := []string{"updated_at = ?"}, []interface{}{time.Now()}
	strField := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	strField("name", patch.Name)
	if patch.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, string(*patch.Type))
	}
	strField("description", patch.Description)
	strField("company", patch.Company)
	strField("title", patch.Title)
	strField("email", patch.Email)
	strField("phone", patch.Phone)
	strField("website", patch.Website)
	if patch.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, int(*patch.Importance))
	}
	if patch.Tags != nil {
		b, _ := json.Marshal(*patch.Tags)
		sets = append(sets, "tags = ?")
		args = append(args, string(b))
	}
	strField("notes", patch.Notes)
	if patch.Metadata != nil {
		b, err := json.Marshal(patch.Metadata)
		if err != nil {
			return nil, fmt.Errorf("sqlite.UpdateEntity: %w", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, string(b))
	}

	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE entities SET %s WHERE id = ? AND user_id = ?", joinSets(sets))
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite.UpdateEntity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, core.ErrNotFound
	}
	return c.GetEntityByID(ctx, userID, id)
}

func (c *Client) DeleteEntity(ctx context.Context, userID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite.DeleteEntity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (c *Client) ListEntities(ctx context.Context, userID string, limit int) ([]*core.Entity, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, name, type, description, company, title, email, phone, website,
		       importance, tags, notes, metadata, created_at, updated_at
		FROM entities WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListEntities: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntityRows(rows)
}

func (c *Client) SearchEntitiesByText(ctx context.Context, userID, query string, limit int) ([]*core.Entity, error) {
	like := "%" + query + "%"
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, name, type, description, company, title, email, phone, website,
		       importance, tags, notes, metadata, created_at, updated_at
		FROM entities
		WHERE user_id = ? AND (name LIKE ? COLLATE NOCASE OR company LIKE ? COLLATE NOCASE
		      OR email LIKE ? COLLATE NOCASE OR notes LIKE ? COLLATE NOCASE)
		ORDER BY created_at DESC LIMIT ?
	`, userID, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite.SearchEntitiesByText: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntityRows(rows)
}

func scanEntityRow(row *sql.Row) (*core.Entity, error) {
	var e core.Entity
	var typ string
	var importance int
	var tagsStr, metadataStr string
	err := row.Scan(&e.ID, &e.UserID, &e.Name, &typ, &e.Description, &e.Company, &e.Title,
		&e.Email, &e.Phone, &e.Website, &importance, &tagsStr, &e.Notes, &metadataStr,
		&e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite.scanEntityRow: %w", err)
	}
	e.Type = core.EntityType(typ)
	e.Importance = core.Importance(importance)
	if tagsStr != "" {
		_ = json.Unmarshal([]byte(tagsStr), &e.Tags)
	}
	if metadataStr != "" {
		_ = json.Unmarshal([]byte(metadataStr), &e.Metadata)
	}
	return &e, nil
}

func scanEntityRows(rows *sql.Rows) ([]*core.Entity, error) {
	var entities []*core.Entity
	for rows.Next() {
		var e core.Entity
		var typ string
		var importance int
		var tagsStr, metadataStr string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Name, &typ, &e.Description, &e.Company, &e.Title,
			&e.Email, &e.Phone, &e.Website, &importance, &tagsStr, &e.Notes, &metadataStr,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite.scanEntityRows: %w", err)
		}
		e.Type = core.EntityType(typ)
		e.Importance = core.Importance(importance)
		if tagsStr != "" {
			_ = json.Unmarshal([]byte(tagsStr), &e.Tags)
		}
		if metadataStr != "" {
			_ = json.Unmarshal([]byte(metadataStr), &e.Metadata)
		}
		entities = append(entities, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entities, nil
}

// --- Interactions ---

func (c *Client) CreateInteraction(ctx context.Context, i *core.Interaction) (*core.Interaction, error) {
	metadataJSON, _ := json.Marshal(i.Metadata)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO interactions (id, user_id, agent_name, content, context, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, i.ID, i.UserID, i.AgentName, i.Content, i.Context, string(metadataJSON), i.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite.CreateInteraction: %w", err)
	}
	return i, nil
}

func (c *Client) ListRecentInteractions(ctx context.Context, userID string, limit int) ([]*core.Interaction, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, agent_name, content, context, metadata, created_at
		FROM interactions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListRecentInteractions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var interactions []*core.Interaction
	for rows.Next() {
		var i core.Interaction
		var metadataStr string
		if err := rows.Scan(&i.ID, &i.UserID, &i.AgentName, &i.Content, &i.Context, &metadataStr, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite.ListRecentInteractions: %w", err)
		}
		if metadataStr != "" {
			_ = json.Unmarshal([]byte(metadataStr), &i.Metadata)
		}
		interactions = append(interactions, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return interactions, nil
}

// --- Usage ---

func (c *Client) AppendUsageRecord(ctx context.Context, rec *core.UsageRecord) error {
	metadataJSON, _ := json.Marshal(rec.Metadata)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO usage_records (id, user_id, provider, model, tokens, cost_usd, operation_type, date, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, string(rec.Provider), rec.Model, rec.Tokens, rec.CostUSD,
		rec.OperationType, rec.Date, rec.Timestamp, string(metadataJSON))
	if err != nil {
		return fmt.Errorf("sqlite.AppendUsageRecord: %w", err)
	}
	return nil
}

func (c *Client) AggregateUsage(ctx context.Context, filter core.UsageFilter) (*core.UsageAggregate, error) {
	conditions := []string{"user_id = ?"}
	args := []interface{}{filter.UserID}
	if filter.DateFrom != "" {
		conditions = append(conditions, "date >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		conditions = append(conditions, "date <= ?")
		args = append(args, filter.DateTo)
	}
	if filter.Provider != nil {
		conditions = append(conditions, "provider = ?")
		args = append(args, string(*filter.Provider))
	}
	where := "WHERE " + conditions[0]
	for _, cond := range conditions[1:] {
		where += " AND " + cond
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT provider, model, tokens, cost_usd FROM usage_records %s
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite.AggregateUsage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	agg := &core.UsageAggregate{
		PerProvider: make(map[core.Provider]core.ProviderUsage),
		PerModel:    make(map[string]core.ModelUsage),
	}
	for rows.Next() {
		var provider, model string
		var tokens int
		var cost float64
		if err := rows.Scan(&provider, &model, &tokens, &cost); err != nil {
			return nil, fmt.Errorf("sqlite.AggregateUsage: %w", err)
		}
		p := agg.PerProvider[core.Provider(provider)]
		p.Tokens += tokens
		p.CostUSD += cost
		p.RequestCount++
		agg.PerProvider[core.Provider(provider)] = p

		m := agg.PerModel[model]
		m.Model = model
		m.Tokens += tokens
		m.CostUSD += cost
		m.RequestCount++
		agg.PerModel[model] = m

		agg.Total.Tokens += tokens
		agg.Total.CostUSD += cost
		agg.Total.RequestCount++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return agg, nil
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
