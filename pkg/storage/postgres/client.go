// Package postgres provides a PostgreSQL + pgvector implementation of the
// Store interface (component C1), for deployments that need a networked,
// concurrent-writer-safe backend. Embeddings are stored in a pgvector
// column; as with the other backends, similarity scoring itself is left to
// the Retrieval Engine, which reads back full embeddings via
// GetMemoriesWithEmbedding and ranks them in Go — keeping scoring semantics
// identical across backends.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/storage"
)

// Client implements core.Store using PostgreSQL with the pgvector extension.
type Client struct {
	db         *sql.DB
	dimensions int
}

// Config contains PostgreSQL connection configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	SSLMode            string
	EmbeddingModelDims int
}

// NewClient opens a PostgreSQL connection and ensures the schema and the
// pgvector extension exist.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.NewClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres.NewClient: %w", err)
	}

	dims := cfg.EmbeddingModelDims
	if dims == 0 {
		dims = 1536
	}
	client := &Client{db: db, dimensions: dims}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE,
			name TEXT,
			metadata JSONB,
			is_active BOOLEAN DEFAULT true,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			type TEXT,
			importance INT DEFAULT 2,
			tags JSONB,
			entity_ids JSONB,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP,
			is_archived BOOLEAN DEFAULT false
		)`, c.dimensions),
		"CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id)",
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
			importance INT DEFAULT 2,
			tags JSONB,
			notes TEXT,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		"CREATE INDEX IF NOT EXISTS idx_entities_user ON entities(user_id)",
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_name TEXT,
			content TEXT,
			context TEXT,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		"CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id, created_at)",
		`CREATE TABLE IF NOT EXISTS usage_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider TEXT,
			model TEXT,
			tokens INT,
			cost_usd DOUBLE PRECISION,
			operation_type TEXT,
			date TEXT,
			timestamp TIMESTAMP,
			metadata JSONB
		)`,
		"CREATE INDEX IF NOT EXISTS idx_usage_user_date ON usage_records(user_id, date)",
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres.initTables: %w", err)
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

// CreateIndex creates an HNSW or IVFFlat pgvector index.
func (c *Client) CreateIndex(ctx context.Context, cfg *core.VectorIndexConfig) error {
	switch cfg.IndexType {
	case core.IndexTypeHNSW:
		params := cfg.HNSWParams
		if params == nil {
			params = &core.HNSWParams{M: 16, EfConstruction: 64}
		}
		query := fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s ON %s
			USING hnsw (%s vector_cosine_ops)
			WITH (m = %d, ef_construction = %d)
		`, cfg.IndexName, cfg.TableName, cfg.VectorField, params.M, params.EfConstruction)
		_, err := c.db.ExecContext(ctx, query)
		return err
	default:
		return fmt.Errorf("postgres.CreateIndex: unsupported index type %s", cfg.IndexType)
	}
}

func vectorToString(vector []float64) string {
	if len(vector) == 0 {
		return "[]"
	}
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = fmt.Sprintf("%f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func parseVectorString(s string) ([]float64, error) {
	s = strings.Trim(s, "[]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	result := make([]float64, len(parts))
	for i, part := range parts {
		var val float64
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%f", &val); err != nil {
			return nil, err
		}
		result[i] = val
	}
	return result, nil
}

// --- Users ---

func (c *Client) CreateUser(ctx context.Context, u *core.User) (*core.User, error) {
	metadataJSON, _ := json.Marshal(u.Metadata)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, metadata, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.Name, string(metadataJSON), u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres.CreateUser: %w", err)
	}
	return u, nil
}

func (c *Client) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, email, name, metadata, is_active, created_at, updated_at FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, email, name, metadata, is_active, created_at, updated_at FROM users WHERE email = $1
	`, email)
	return scanUser(row)
}

func (c *Client) UpdateUser(ctx context.Context, id string, patch core.UserPatch) (*core.User, error) {
	sets, args := []string{"updated_at = $1"}, []interface{}{time.Now()}
	n := 2
	if patch.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", n))
		args = append(args, *patch.Name)
		n++
	}
	if patch.Metadata != nil {
		b, _ := json.Marshal(patch.Metadata)
		sets = append(sets, fmt.Sprintf("metadata = $%d", n))
		args = append(args, string(b))
		n++
	}
	if patch.IsActive != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", n))
		args = append(args, *patch.IsActive)
		n++
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), n)
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres.UpdateUser: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, core.ErrNotFound
	}
	return c.GetUserByID(ctx, id)
}

func scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	var metadataStr []byte
	err := row.Scan(&u.ID, &u.Email, &u.Name, &metadataStr, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres.scanUser: %w", err)
	}
	if len(metadataStr) > 0 {
		_ = json.Unmarshal(metadataStr, &u.Metadata)
	}
	return &u, nil
}

// --- Memories ---

func (c *Client) CreateMemory(ctx context.Context, m *core.Memory) (*core.Memory, error) {
	tagsJSON, _ := json.Marshal(m.Tags)
	entityIDsJSON, _ := json.Marshal(m.EntityIDs)
	metadataJSON, _ := json.Marshal(m.Metadata)

	var embeddingArg interface{}
	if len(m.Embedding) > 0 {
		embeddingArg = vectorToString(m.Embedding)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO memories
		(id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		 created_at, updated_at, expires_at, is_archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, m.ID, m.UserID, m.Title, m.Content, string(m.Type), int(m.Importance),
		string(tagsJSON), string(entityIDsJSON), string(metadataJSON), embeddingArg,
		m.CreatedAt, m.UpdatedAt, m.ExpiresAt, m.IsArchived)
	if err != nil {
		return nil, fmt.Errorf("postgres.CreateMemory: %w", err)
	}
	return m, nil
}

func (c *Client) GetMemoryByID(ctx context.Context, userID, id string) (*core.Memory, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories WHERE id = $1 AND user_id = $2
	`, id, userID)
	return scanMemoryRow(row)
}

func (c *Client) UpdateMemory(ctx context.Context, userID, id string, patch core.MemoryPatch) (*core.Memory, error) {
	sets, args := []string{"updated_at = $1"}, []interface{}{time.Now()}
	n := 2
	add := func(col string, v interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, v)
		n++
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Content != nil {
		add("content", *patch.Content)
	}
	if patch.Type != nil {
		add("type", string(*patch.Type))
	}
	if patch.Importance != nil {
		add("importance", int(*patch.Importance))
	}
	if patch.Tags != nil {
		b, _ := json.Marshal(*patch.Tags)
		add("tags", string(b))
	}
	if patch.EntityIDs != nil {
		b, _ := json.Marshal(*patch.EntityIDs)
		add("entity_ids", string(b))
	}
	if patch.Metadata != nil {
		b, _ := json.Marshal(patch.Metadata)
		add("metadata", string(b))
	}
	if patch.Embedding != nil {
		if len(*patch.Embedding) > 0 {
			add("embedding", vectorToString(*patch.Embedding))
		} else {
			add("embedding", nil)
		}
	}
	if patch.IsArchived != nil {
		add("is_archived", *patch.IsArchived)
	}
	if patch.ExpiresAt != nil {
		add("expires_at", *patch.ExpiresAt)
	}

	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = $%d AND user_id = $%d", strings.Join(sets, ", "), n, n+1)
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres.UpdateMemory: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, core.ErrNotFound
	}
	return c.GetMemoryByID(ctx, userID, id)
}

func (c *Client) DeleteMemory(ctx context.Context, userID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("postgres.DeleteMemory: %w", err)
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
		FROM memories WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres.ListMemories: %w", err)
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
		WHERE user_id = $1 AND (title ILIKE $2 OR content ILIKE $2)
		ORDER BY created_at DESC LIMIT $3
	`, userID, like, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres.SearchMemoriesLexical: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemoryRows(rows)
}

func (c *Client) SearchMemoriesByMetadata(ctx context.Context, userID, field, value string, limit int) ([]*core.Memory, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres.SearchMemoriesByMetadata: %w", err)
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
		FROM memories WHERE user_id = $1 AND embedding IS NOT NULL
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres.GetMemoriesWithEmbedding: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemoryRows(rows)
}

func (c *Client) GetMemoriesMissingEmbedding(ctx context.Context, userID string, limit int) ([]*core.Memory, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, type, importance, tags, entity_ids, metadata, embedding,
		       created_at, updated_at, expires_at, is_archived
		FROM memories WHERE user_id = $1 AND embedding IS NULL
		ORDER BY created_at ASC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres.GetMemoriesMissingEmbedding: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemoryRows(rows)
}

func scanMemoryRow(row *sql.Row) (*core.Memory, error) {
	var m core.Memory
	var typ string
	var importance int
	var tagsStr, entityIDsStr, metadataStr []byte
	var embeddingStr sql.NullString
	var expiresAt sql.NullTime

	err := row.Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &typ, &importance,
		&tagsStr, &entityIDsStr, &metadataStr, &embeddingStr,
		&m.CreatedAt, &m.UpdatedAt, &expiresAt, &m.IsArchived)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres.scanMemoryRow: %w", err)
	}
	if err := hydrateMemory(&m, typ, importance, tagsStr, entityIDsStr, metadataStr, embeddingStr, expiresAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMemoryRows(rows *sql.Rows) ([]*core.Memory, error) {
	var memories []*core.Memory
	for rows.Next() {
		var m core.Memory
		var typ string
		var importance int
		var tagsStr, entityIDsStr, metadataStr []byte
		var embeddingStr sql.NullString
		var expiresAt sql.NullTime

		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &typ, &importance,
			&tagsStr, &entityIDsStr, &metadataStr, &embeddingStr,
			&m.CreatedAt, &m.UpdatedAt, &expiresAt, &m.IsArchived); err != nil {
			return nil, fmt.Errorf("postgres.scanMemoryRows: %w", err)
		}
		if err := hydrateMemory(&m, typ, importance, tagsStr, entityIDsStr, metadataStr, embeddingStr, expiresAt); err != nil {
			return nil, err
		}
		memories = append(memories, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memories, nil
}

func hydrateMemory(m *core.Memory, typ string, importance int, tagsStr, entityIDsStr, metadataStr []byte, embeddingStr sql.NullString, expiresAt sql.NullTime) error {
	m.Type = core.MemoryType(typ)
	m.Importance = core.Importance(importance)
	if len(tagsStr) > 0 {
		_ = json.Unmarshal(tagsStr, &m.Tags)
	}
	if len(entityIDsStr) > 0 {
		_ = json.Unmarshal(entityIDsStr, &m.EntityIDs)
	}
	if len(metadataStr) > 0 {
		_ = json.Unmarshal(metadataStr, &m.Metadata)
	}
	if embeddingStr.Valid {
		vec, err := parseVectorString(embeddingStr.String)
		if err != nil {
			return fmt.Errorf("postgres.hydrateMemory: parse embedding: %w", err)
		}
		m.Embedding = vec
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		m.ExpiresAt = &t
	}
	return nil
}

// --- Entities ---

func (c *Client) CreateEntity(ctx context.Context, e *core.Entity) (*core.Entity, error) {
	tagsJSON, _ := json.Marshal(e.Tags)
	metadataJSON, _ := json.Marshal(e.Metadata)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO entities
		(id, user_id, name, type, description, company, title, email, phone, website,
		 importance, tags, notes, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, e.ID, e.UserID, e.Name, string(e.Type), e.Description, e.Company, e.Title, e.Email, e.Phone, e.Website,
		int(e.Importance), string(tagsJSON), e.Notes, string(metadataJSON), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres.CreateEntity: %w", err)
	}
	return e, nil
}

func (c *Client) GetEntityByID(ctx context.Context, userID, id string) (*core.Entity, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, type, description, company, title, email, phone, website,
		       importance, tags, notes, metadata, created_at, updated_at
		FROM entities WHERE id = $1 AND user_id = $2
	`, id, userID)
	return scanEntityRow(row)
}

func (c *Client) UpdateEntity(ctx context.Context, userID, id string, patch core.EntityPatch) (*core.Entity, error) {
	sets, args := []string{"updated_at = $1"}, []interface{}{time.Now()}
	n := 2
	add := func(col string, v interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, v)
		n++
	}
	strField := func(col string, v *string) {
		if v != nil {
			add(col, *v)
		}
	}
	strField("name", patch.Name)
	if patch.Type != nil {
		add("type", string(*patch.Type))
	}
	strField("description", patch.Description)
	strField("company", patch.Company)
	strField("title", patch.Title)
	strField("email", patch.Email)
	strField("phone", patch.Phone)
	strField("website", patch.Website)
	if patch.Importance != nil {
		add("importance", int(*patch.Importance))
	}
	if patch.Tags != nil {
		b, _ := json.Marshal(*patch.Tags)
		add("tags", string(b))
	}
	strField("notes", patch.Notes)
	if patch.Metadata != nil {
		b, _ := json.Marshal(patch.Metadata)
		add("metadata", string(b))
	}

	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE entities SET %s WHERE id = $%d AND user_id = $%d", strings.Join(sets, ", "), n, n+1)
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres.UpdateEntity: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, core.ErrNotFound
	}
	return c.GetEntityByID(ctx, userID, id)
}

func (c *Client) DeleteEntity(ctx context.Context, userID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM entities WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("postgres.DeleteEntity: %w", err)
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
		FROM entities WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres.ListEntities: %w", err)
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
		WHERE user_id = $1 AND (name ILIKE $2 OR company ILIKE $2 OR email ILIKE $2 OR notes ILIKE $2)
		ORDER BY created_at DESC LIMIT $3
	`, userID, like, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres.SearchEntitiesByText: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntityRows(rows)
}

func scanEntityRow(row *sql.Row) (*core.Entity, error) {
	var e core.Entity
	var typ string
	var importance int
	var tagsStr, metadataStr []byte
	err := row.Scan(&e.ID, &e.UserID, &e.Name, &typ, &e.Description, &e.Company, &e.Title,
		&e.Email, &e.Phone, &e.Website, &importance, &tagsStr, &e.Notes, &metadataStr,
		&e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres.scanEntityRow: %w", err)
	}
	e.Type = core.EntityType(typ)
	e.Importance = core.Importance(importance)
	if len(tagsStr) > 0 {
		_ = json.Unmarshal(tagsStr, &e.Tags)
	}
	if len(metadataStr) > 0 {
		_ = json.Unmarshal(metadataStr, &e.Metadata)
	}
	return &e, nil
}

func scanEntityRows(rows *sql.Rows) ([]*core.Entity, error) {
	var entities []*core.Entity
	for rows.Next() {
		var e core.Entity
		var typ string
		var importance int
		var tagsStr, metadataStr []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Name, &typ, &e.Description, &e.Company, &e.Title,
			&e.Email, &e.Phone, &e.Website, &importance, &tagsStr, &e.Notes, &metadataStr,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres.scanEntityRows: %w", err)
		}
		e.Type = core.EntityType(typ)
		e.Importance = core.Importance(importance)
		if len(tagsStr) > 0 {
			_ = json.Unmarshal(tagsStr, &e.Tags)
		}
		if len(metadataStr) > 0 {
			_ = json.Unmarshal(metadataStr, &e.Metadata)
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, i.ID, i.UserID, i.AgentName, i.Content, i.Context, string(metadataJSON), i.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres.CreateInteraction: %w", err)
	}
	return i, nil
}

func (c *Client) ListRecentInteractions(ctx context.Context, userID string, limit int) ([]*core.Interaction, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, agent_name, content, context, metadata, created_at
		FROM interactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres.ListRecentInteractions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var interactions []*core.Interaction
	for rows.Next() {
		var i core.Interaction
		var metadataStr []byte
		if err := rows.Scan(&i.ID, &i.UserID, &i.AgentName, &i.Content, &i.Context, &metadataStr, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres.ListRecentInteractions: %w", err)
		}
		if len(metadataStr) > 0 {
			_ = json.Unmarshal(metadataStr, &i.Metadata)
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.UserID, string(rec.Provider), rec.Model, rec.Tokens, rec.CostUSD,
		rec.OperationType, rec.Date, rec.Timestamp, string(metadataJSON))
	if err != nil {
		return fmt.Errorf("postgres.AppendUsageRecord: %w", err)
	}
	return nil
}

func (c *Client) AggregateUsage(ctx context.Context, filter core.UsageFilter) (*core.UsageAggregate, error) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	n := 2
	if filter.DateFrom != "" {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", n))
		args = append(args, filter.DateFrom)
		n++
	}
	if filter.DateTo != "" {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", n))
		args = append(args, filter.DateTo)
		n++
	}
	if filter.Provider != nil {
		conditions = append(conditions, fmt.Sprintf("provider = $%d", n))
		args = append(args, string(*filter.Provider))
		n++
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT provider, model, tokens, cost_usd FROM usage_records WHERE %s
	`, strings.Join(conditions, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres.AggregateUsage: %w", err)
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
			return nil, fmt.Errorf("postgres.AggregateUsage: %w", err)
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
