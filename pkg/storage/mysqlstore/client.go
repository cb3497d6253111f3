// Package mysqlstore provides a MySQL implementation of the Store interface
// (component C1), generalizing the OceanBase-flavored client this module
// started from to plain MySQL/MariaDB: embeddings are stored as JSON text
// rather than a vendor-specific VECTOR column, and similarity scoring is
// left to the Retrieval Engine like the other backends.
package mysqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/storage"
)

// Client implements core.Store using MySQL as the backend.
type Client struct {
	db *sql.DB
}

// Config contains MySQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// NewClient opens a MySQL connection and ensures the schema exists.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.NewClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("mysqlstore.NewClient: %w", err)
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
			id VARCHAR(64) PRIMARY KEY,
			email VARCHAR(255) UNIQUE,
			name VARCHAR(255),
			metadata JSON,
			is_active BOOLEAN DEFAULT true,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			title TEXT,
			content LONGTEXT NOT NULL,
			type VARCHAR(32),
			importance INT DEFAULT 2,
			tags JSON,
			entity_ids JSON,
			metadata JSON,
			embedding JSON,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NULL,
			is_archived BOOLEAN DEFAULT false,
			INDEX idx_memories_user (user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			name VARCHAR(255),
			type VARCHAR(32),
			description TEXT,
			company VARCHAR(255),
			title VARCHAR(255),
			email VARCHAR(255),
			phone VARCHAR(64),
			website VARCHAR(255),
			importance INT DEFAULT 2,
			tags JSON,
			notes TEXT,
			metadata JSON,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_entities_user (user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			agent_name VARCHAR(255),
			content LONGTEXT,
			context TEXT,
			metadata JSON,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_interactions_user (user_id, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS usage_records (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			provider VARCHAR(32),
			model VARCHAR(128),
			tokens INT,
			cost_usd DOUBLE,
			operation_type VARCHAR(64),
			date VARCHAR(10),
			timestamp DATETIME,
			metadata JSON,
			INDEX idx_usage_user_date (user_id, date)
		)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysqlstore.initTables: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// CreateIndex is a no-op: plain MySQL has no native vector index support.
func (c *Client) CreateIndex(ctx context.Context, cfg *core.VectorIndexConfig) error {
	return nil
}

// --- Users ---

func (c *Client) CreateUser(ctx context.Context, u *core.User) (*core.User, error) {
	metadataJSON, _ := json.Marshal(u.Metadata)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, metadata, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, string(metadataJSON), u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.CreateUser: %w", err)
	}
	return u, nil
}

func (c *Client) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, email, name, metadata, is_active, created_at, updated_at FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, email, name, metadata, is_active, created_at, updated_at FROM users WHERE email = ?
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
		b, _ := json.Marshal(patch.Metadata)
		sets = append(sets, "metadata = ?")
		args = append(args, string(b))
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *patch.IsActive)
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.UpdateUser: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		if _, getErr := c.GetUserByID(ctx, id); getErr == nil {
			return c.GetUserByID(ctx, id)
		}
		return nil, core.ErrNotFound
	}
	return c.GetUserByID(ctx, id)
}

func scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	var metadataStr sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.Name, &metadataStr, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.scanUser: %w", err)
	}
	if metadataStr.Valid && metadataStr.String != "" {
		_ = json.Unmarshal([]byte(metadataStr.String), &u.Metadata)
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
		return nil, fmt.Errorf("mysqlstore.CreateMemory: %w", err)
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
		b, _ := json.Marshal(patch.Metadata)
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
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ? AND user_id = ?", strings.Join(sets, ", "))
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.UpdateMemory: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		if _, getErr := c.GetMemoryByID(ctx, userID, id); getErr != nil {
			return nil, core.ErrNotFound
		}
	}
	return c.GetMemoryByID(ctx, userID, id)
}

func (c *Client) DeleteMemory(ctx context.Context, userID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("mysqlstore.DeleteMemory: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
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
		return nil, fmt.Errorf("mysqlstore.ListMemories: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemoryRows(rows)
}

func (c *Client) SearchMemoriesLexical(ctx context.Context, userID, query string, limit int) ([]*core.Memory, error) {
	like := "%" + query + "%"
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories
		WHERE user_id = ? AND (title LIKE ? OR content LIKE ?)
		ORDER BY created_at DESC LIMIT ?
	`, userID, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.SearchMemoriesLexical: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemoryRows(rows)
}

func (c *Client) SearchMemoriesByMetadata(ctx context.Context, userID, field, value string, limit int) ([]*core.Memory, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.SearchMemoriesByMetadata: %w", err)
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
		FROM memories WHERE user_id = ? AND JSON_LENGTH(embedding) > 0
		ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.GetMemoriesWithEmbedding: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemoryRows(rows)
}

func (c *Client) GetMemoriesMissingEmbedding(ctx context.Context, userID string, limit int) ([]*core.Memory, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories WHERE user_id = ? AND (embedding IS NULL OR JSON_LENGTH(embedding) = 0)
		ORDER BY created_at ASC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.GetMemoriesMissingEmbedding: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemoryRows(rows)
}

func scanMemoryRow(row *sql.Row) (*core.Memory, error) {
	var m core.Memory
	var typ string
	var importance int
	var tagsStr, entityIDsStr, metadataStr, embeddingStr sql.NullString
	var expiresAt sql.NullTime

	err := row.Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &typ, &importance,
		&tagsStr, &entityIDsStr, &metadataStr, &embeddingStr,
		&m.CreatedAt, &m.UpdatedAt, &expiresAt, &m.IsArchived)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.scanMemoryRow: %w", err)
	}
	hydrateMemory(&m, typ, importance, tagsStr, entityIDsStr, metadataStr, embeddingStr, expiresAt)
	return &m, nil
}

func scanMemoryRows(rows *sql.Rows) ([]*core.Memory, error) {
	var memories []*core.Memory
	for rows.Next() {
		var m core.Memory
		var typ string
		var importance int
		var tagsStr, entityIDsStr, metadataStr, embeddingStr sql.NullString
		var expiresAt sql.NullTime

		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &typ, &importance,
			&tagsStr, &entityIDsStr, &metadataStr, &embeddingStr,
			&m.CreatedAt, &m.UpdatedAt, &expiresAt, &m.IsArchived); err != nil {
			return nil, fmt.Errorf("mysqlstore.scanMemoryRows: %w", err)
		}
		hydrateMemory(&m, typ, importance, tagsStr, entityIDsStr, metadataStr, embeddingStr, expiresAt)
		memories = append(memories, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memories, nil
}

func hydrateMemory(m *core.Memory, typ string, importance int, tagsStr, entityIDsStr, metadataStr, embeddingStr sql.NullString, expiresAt sql.NullTime) {
	m.Type = core.MemoryType(typ)
	m.Importance = core.Importance(importance)
	if tagsStr.Valid && tagsStr.String != "" {
		_ = json.Unmarshal([]byte(tagsStr.String), &m.Tags)
	}
	if entityIDsStr.Valid && entityIDsStr.String != "" {
		_ = json.Unmarshal([]byte(entityIDsStr.String), &m.EntityIDs)
	}
	if metadataStr.Valid && metadataStr.String != "" {
		_ = json.Unmarshal([]byte(metadataStr.String), &m.Metadata)
	}
	if embeddingStr.Valid && embeddingStr.String != "" && embeddingStr.String != "null" {
		_ = json.Unmarshal([]byte(embeddingStr.String), &m.Embedding)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		m.ExpiresAt = &t
	}
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
		return nil, fmt.Errorf("mysqlstore.CreateEntity: %w", err)
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
		b, _ := json.Marshal(patch.Metadata)
		sets = append(sets, "metadata = ?")
		args = append(args, string(b))
	}

	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE entities SET %s WHERE id = ? AND user_id = ?", strings.Join(sets, ", "))
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.UpdateEntity: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		if _, getErr := c.GetEntityByID(ctx, userID, id); getErr != nil {
			return nil, core.ErrNotFound
		}
	}
	return c.GetEntityByID(ctx, userID, id)
}

func (c *Client) DeleteEntity(ctx context.Context, userID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("mysqlstore.DeleteEntity: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
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
		return nil, fmt.Errorf("mysqlstore.ListEntities: %w", err)
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
		WHERE user_id = ? AND (name LIKE ? OR company LIKE ? OR email LIKE ? OR notes LIKE ?)
		ORDER BY created_at DESC LIMIT ?
	`, userID, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.SearchEntitiesByText: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntityRows(rows)
}

func scanEntityRow(row *sql.Row) (*core.Entity, error) {
	var e core.Entity
	var typ string
	var importance int
	var tagsStr, metadataStr sql.NullString
	err := row.Scan(&e.ID, &e.UserID, &e.Name, &typ, &e.Description, &e.Company, &e.Title,
		&e.Email, &e.Phone, &e.Website, &importance, &tagsStr, &e.Notes, &metadataStr,
		&e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.scanEntityRow: %w", err)
	}
	e.Type = core.EntityType(typ)
	e.Importance = core.Importance(importance)
	if tagsStr.Valid && tagsStr.String != "" {
		_ = json.Unmarshal([]byte(tagsStr.String), &e.Tags)
	}
	if metadataStr.Valid && metadataStr.String != "" {
		_ = json.Unmarshal([]byte(metadataStr.String), &e.Metadata)
	}
	return &e, nil
}

func scanEntityRows(rows *sql.Rows) ([]*core.Entity, error) {
	var entities []*core.Entity
	for rows.Next() {
		var e core.Entity
		var typ string
		var importance int
		var tagsStr, metadataStr sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Name, &typ, &e.Description, &e.Company, &e.Title,
			&e.Email, &e.Phone, &e.Website, &importance, &tagsStr, &e.Notes, &metadataStr,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("mysqlstore.scanEntityRows: %w", err)
		}
		e.Type = core.EntityType(typ)
		e.Importance = core.Importance(importance)
		if tagsStr.Valid && tagsStr.String != "" {
			_ = json.Unmarshal([]byte(tagsStr.String), &e.Tags)
		}
		if metadataStr.Valid && metadataStr.String != "" {
			_ = json.Unmarshal([]byte(metadataStr.String), &e.Metadata)
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
		return nil, fmt.Errorf("mysqlstore.CreateInteraction: %w", err)
	}
	return i, nil
}

func (c *Client) ListRecentInteractions(ctx context.Context, userID string, limit int) ([]*core.Interaction, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, agent_name, content, context, metadata, created_at
		FROM interactions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.ListRecentInteractions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var interactions []*core.Interaction
	for rows.Next() {
		var i core.Interaction
		var metadataStr sql.NullString
		if err := rows.Scan(&i.ID, &i.UserID, &i.AgentName, &i.Content, &i.Context, &metadataStr, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("mysqlstore.ListRecentInteractions: %w", err)
		}
		if metadataStr.Valid && metadataStr.String != "" {
			_ = json.Unmarshal([]byte(metadataStr.String), &i.Metadata)
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
		return fmt.Errorf("mysqlstore.AppendUsageRecord: %w", err)
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

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT provider, model, tokens, cost_usd FROM usage_records WHERE %s
	`, strings.Join(conditions, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore.AggregateUsage: %w", err)
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
			return nil, fmt.Errorf("mysqlstore.AggregateUsage: %w", err)
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
