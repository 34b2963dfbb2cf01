package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// CacheStats holds cache performance metrics
type CacheStats struct {
	TotalHits    int        `json:"total_hits"`
	TotalMisses  int        `json:"total_misses"`
	HitRate      float64    `json:"hit_rate"`
	EntriesCount int        `json:"entries_count"`
	LastCleanup  *time.Time `json:"last_cleanup"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CacheClient handles DuckDB-based caching of backend responses
type CacheClient struct {
	db        *sql.DB
	name      string
	cachePath string
}

// NewCacheClient opens (or creates) the cache for one project inside dir
func NewCacheClient(dir, projectID string) (*CacheClient, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required for the cache")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return Open(filepath.Join(dir, fmt.Sprintf("%s.db", projectID)), projectID)
}

// Open connects to a DuckDB database at path; an empty path is an
// in-memory database
func Open(path, name string) (*CacheClient, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connection: %w", err)
	}

	client := &CacheClient{
		db:        db,
		name:      name,
		cachePath: path,
	}

	if err := client.initializeTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache tables: %w", err)
	}

	return client, nil
}

// Path returns the database file, empty for in-memory caches
func (c *CacheClient) Path() string {
	return c.cachePath
}

// Close closes the database connection
func (c *CacheClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// initializeTables creates the necessary cache tables
func (c *CacheClient) initializeTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS metadata_cache (
			project_id VARCHAR NOT NULL,
			cache_type VARCHAR NOT NULL,  -- 'metadata_fields'
			data TEXT NOT NULL,           -- JSON-encoded payload
			created_at TIMESTAMP DEFAULT NOW(),
			expires_at TIMESTAMP NOT NULL,
			last_accessed TIMESTAMP DEFAULT NOW(),
			PRIMARY KEY (project_id, cache_type)
		)`,

		`CREATE TABLE IF NOT EXISTS query_cache (
			query_hash VARCHAR PRIMARY KEY,  -- hash of project + pivot request
			query_id VARCHAR NOT NULL,
			project_id VARCHAR NOT NULL,
			query_params TEXT NOT NULL,      -- JSON-encoded pivot request
			result_data TEXT NOT NULL,       -- JSON-encoded pivot table
			row_count INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT NOW(),
			expires_at TIMESTAMP,            -- NULL = never expires
			last_accessed TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS cache_stats (
			cache_name VARCHAR PRIMARY KEY,
			total_hits INTEGER DEFAULT 0,
			total_misses INTEGER DEFAULT 0,
			last_cleanup TIMESTAMP,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
	}

	for _, query := range queries {
		if _, err := c.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	_, err := c.db.Exec(`
		INSERT OR IGNORE INTO cache_stats (cache_name)
		VALUES (?)
	`, c.name)

	return err
}

// CacheMetadata stores a metadata payload with TTL
func (c *CacheClient) CacheMetadata(ctx context.Context, projectID, cacheType string, data interface{}, ttlHours int) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	expiresAt := time.Now().Add(time.Duration(ttlHours) * time.Hour)

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata_cache
		(project_id, cache_type, data, expires_at)
		VALUES (?, ?, ?, ?)
	`, projectID, cacheType, string(jsonData), expiresAt)

	return err
}

// GetCachedMetadata retrieves cached metadata if still valid
func (c *CacheClient) GetCachedMetadata(ctx context.Context, projectID, cacheType string, result interface{}) (bool, error) {
	var data string
	var expiresAt time.Time

	err := c.db.QueryRowContext(ctx, `
		SELECT data, expires_at
		FROM metadata_cache
		WHERE project_id = ? AND cache_type = ?
	`, projectID, cacheType).Scan(&data, &expiresAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.incrementMisses()
			return false, nil
		}
		return false, fmt.Errorf("failed to query cache: %w", err)
	}

	if time.Now().After(expiresAt) {
		c.incrementMisses()
		c.db.ExecContext(ctx, `
			DELETE FROM metadata_cache
			WHERE project_id = ? AND cache_type = ?
		`, projectID, cacheType)
		return false, nil
	}

	c.db.ExecContext(ctx, `
		UPDATE metadata_cache
		SET last_accessed = NOW()
		WHERE project_id = ? AND cache_type = ?
	`, projectID, cacheType)

	if err := json.Unmarshal([]byte(data), result); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	c.incrementHits()
	return true, nil
}

// InvalidateMetadata drops the cached metadata of a project, e.g. after a
// new metadata key was observed
func (c *CacheClient) InvalidateMetadata(ctx context.Context, projectID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM metadata_cache WHERE project_id = ?`, projectID)
	return err
}

// CacheQuery stores pivot results with optional TTL
func (c *CacheClient) CacheQuery(ctx context.Context, queryID, projectID, queryHash string, queryParams, resultData interface{}, rowCount int, ttlHours *int) error {
	jsonParams, err := json.Marshal(queryParams)
	if err != nil {
		return fmt.Errorf("failed to marshal query params: %w", err)
	}

	jsonData, err := json.Marshal(resultData)
	if err != nil {
		return fmt.Errorf("failed to marshal result data: %w", err)
	}

	var expiresAt *time.Time
	if ttlHours != nil {
		expires := time.Now().Add(time.Duration(*ttlHours) * time.Hour)
		expiresAt = &expires
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO query_cache
		(query_hash, query_id, project_id, query_params, result_data, row_count, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, queryHash, queryID, projectID, string(jsonParams), string(jsonData), rowCount, expiresAt)

	return err
}

// GetCachedQuery retrieves cached pivot results if still valid
func (c *CacheClient) GetCachedQuery(ctx context.Context, queryHash string, resultData interface{}) (bool, error) {
	var data string
	var expiresAt sql.NullTime
	var rowCount int

	err := c.db.QueryRowContext(ctx, `
		SELECT result_data, row_count, expires_at
		FROM query_cache
		WHERE query_hash = ?
	`, queryHash).Scan(&data, &rowCount, &expiresAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.incrementMisses()
			return false, nil
		}
		return false, fmt.Errorf("failed to query cache: %w", err)
	}

	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		c.incrementMisses()
		c.db.ExecContext(ctx, `DELETE FROM query_cache WHERE query_hash = ?`, queryHash)
		return false, nil
	}

	c.db.ExecContext(ctx, `
		UPDATE query_cache
		SET last_accessed = NOW()
		WHERE query_hash = ?
	`, queryHash)

	if err := json.Unmarshal([]byte(data), resultData); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	c.incrementHits()
	return true, nil
}

// GetCacheStats returns cache performance statistics
func (c *CacheClient) GetCacheStats(ctx context.Context) (*CacheStats, error) {
	var stats CacheStats
	var lastCleanup sql.NullTime
	err := c.db.QueryRowContext(ctx, `
		SELECT total_hits, total_misses, last_cleanup, created_at, updated_at
		FROM cache_stats
		WHERE cache_name = ?
	`, c.name).Scan(
		&stats.TotalHits, &stats.TotalMisses, &lastCleanup,
		&stats.CreatedAt, &stats.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastCleanup.Valid {
		stats.LastCleanup = &lastCleanup.Time
	}

	total := stats.TotalHits + stats.TotalMisses
	if total > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(total) * 100
	}

	var entries int64
	err = c.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM metadata_cache) + (SELECT COUNT(*) FROM query_cache)
	`).Scan(&entries)
	if err != nil {
		return nil, err
	}
	stats.EntriesCount = int(entries)

	return &stats, nil
}

// CleanupExpiredEntries removes expired cache entries
func (c *CacheClient) CleanupExpiredEntries(ctx context.Context) (int, error) {
	result1, err := c.db.ExecContext(ctx, `
		DELETE FROM metadata_cache
		WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}

	deleted1, _ := result1.RowsAffected()

	result2, err := c.db.ExecContext(ctx, `
		DELETE FROM query_cache
		WHERE expires_at IS NOT NULL AND expires_at < NOW()
	`)
	if err != nil {
		return int(deleted1), err
	}

	deleted2, _ := result2.RowsAffected()

	_, err = c.db.ExecContext(ctx, `
		UPDATE cache_stats
		SET last_cleanup = NOW(), updated_at = NOW()
		WHERE cache_name = ?
	`, c.name)

	return int(deleted1 + deleted2), err
}

// Helper methods for cache statistics
func (c *CacheClient) incrementHits() {
	c.db.Exec(`
		UPDATE cache_stats
		SET total_hits = total_hits + 1, updated_at = NOW()
		WHERE cache_name = ?
	`, c.name)
}

func (c *CacheClient) incrementMisses() {
	c.db.Exec(`
		UPDATE cache_stats
		SET total_misses = total_misses + 1, updated_at = NOW()
		WHERE cache_name = ?
	`, c.name)
}
