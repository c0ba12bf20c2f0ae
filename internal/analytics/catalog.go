package analytics

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteCatalog is a TenantCatalog backed by the product's project database.
// The RAG core only ever reads from it; project CRUD lives in the web
// application.
type SQLiteCatalog struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenCatalog opens the catalog database at the given path and ensures the
// read-model schema exists. Use ":memory:" for an in-memory database in
// tests.
func OpenCatalog(path string) (*SQLiteCatalog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("analytics: open catalog %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	c := &SQLiteCatalog{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// migrate creates the schema if it does not already exist.
func (c *SQLiteCatalog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS projects (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    currency   TEXT NOT NULL DEFAULT 'USD',
    created_at INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS project_platforms (
    project_id   TEXT NOT NULL REFERENCES projects(id),
    platform     TEXT NOT NULL,
    connected_at INTEGER NOT NULL,
    PRIMARY KEY (project_id, platform)
);
CREATE INDEX IF NOT EXISTS idx_project_platforms_project
    ON project_platforms (project_id);
`
	if _, err := c.db.Exec(ddl); err != nil {
		return fmt.Errorf("analytics: catalog migrate: %w", err)
	}
	return nil
}

// ListSyncEligible returns every project with at least one connected
// platform, with its platform list populated.
func (c *SQLiteCatalog) ListSyncEligible(ctx context.Context) ([]Tenant, error) {
	const q = `
SELECT p.id, p.name, p.currency, pp.platform
FROM   projects p
JOIN   project_platforms pp ON pp.project_id = p.id
ORDER  BY p.id, pp.platform`

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("analytics: list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	index := make(map[string]int)
	for rows.Next() {
		var id, name, currency, platform string
		if err := rows.Scan(&id, &name, &currency, &platform); err != nil {
			return nil, fmt.Errorf("analytics: list tenants scan: %w", err)
		}
		i, ok := index[id]
		if !ok {
			i = len(tenants)
			index[id] = i
			tenants = append(tenants, Tenant{ID: id, Name: name, Currency: currency})
		}
		tenants[i].Platforms = append(tenants[i].Platforms, platform)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("analytics: list tenants rows: %w", err)
	}
	return tenants, nil
}

// Get returns a single tenant by ID, including its connected platforms.
// Returns sql.ErrNoRows wrapped if the project does not exist.
func (c *SQLiteCatalog) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	const q = `SELECT id, name, currency FROM projects WHERE id = ?`

	var t Tenant
	if err := c.db.QueryRowContext(ctx, q, tenantID).Scan(&t.ID, &t.Name, &t.Currency); err != nil {
		return nil, fmt.Errorf("analytics: get tenant %s: %w", tenantID, err)
	}

	const pq = `SELECT platform FROM project_platforms WHERE project_id = ? ORDER BY platform`
	rows, err := c.db.QueryContext(ctx, pq, tenantID)
	if err != nil {
		return nil, fmt.Errorf("analytics: get tenant platforms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var platform string
		if err := rows.Scan(&platform); err != nil {
			return nil, fmt.Errorf("analytics: get tenant platforms scan: %w", err)
		}
		t.Platforms = append(t.Platforms, platform)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("analytics: get tenant platforms rows: %w", err)
	}
	return &t, nil
}

// Close releases the database connection pool.
func (c *SQLiteCatalog) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("analytics: catalog close: %w", err)
	}
	return nil
}
