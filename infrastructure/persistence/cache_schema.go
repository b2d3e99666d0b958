package persistence

import (
	"database/sql"
	"fmt"

	"video-gateway/infrastructure/logger"
)

// EnsureCacheSchema creates the cache tables on PostgreSQL if they do not exist.
func EnsureCacheSchema(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gateway_cache_stores (
        name TEXT PRIMARY KEY,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
		`CREATE TABLE IF NOT EXISTS gateway_cache_entries (
        store_name TEXT NOT NULL,
        key_hash CHAR(64) NOT NULL,
        cache_key TEXT NOT NULL,
        url TEXT NOT NULL,
        status_code INT NOT NULL,
        headers JSONB NOT NULL,
        body BYTEA NOT NULL,
        stored_at BIGINT NOT NULL,
        PRIMARY KEY (store_name, key_hash)
    )`,
	}
	for _, ddl := range stmts {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("create cache tables: %w", err)
		}
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_gateway_cache_entries_stored_at ON gateway_cache_entries(store_name, stored_at)`); err != nil {
		logger.GetLogger().WithField("error", err).Warn("failed creating idx_gateway_cache_entries_stored_at")
	}
	return nil
}

// EnsureCacheSchemaMSSQL creates the cache tables on SQL Server if they do not exist.
func EnsureCacheSchemaMSSQL(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	stmts := []string{
		`IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'dbo.gateway_cache_stores') AND type in (N'U'))
BEGIN
    CREATE TABLE dbo.gateway_cache_stores (
        name NVARCHAR(128) NOT NULL PRIMARY KEY,
        created_at DATETIMEOFFSET NOT NULL DEFAULT SYSDATETIMEOFFSET()
    );
END`,
		`IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'dbo.gateway_cache_entries') AND type in (N'U'))
BEGIN
    CREATE TABLE dbo.gateway_cache_entries (
        store_name NVARCHAR(128) NOT NULL,
        key_hash CHAR(64) NOT NULL,
        cache_key NVARCHAR(MAX) NOT NULL,
        url NVARCHAR(MAX) NOT NULL,
        status_code INT NOT NULL,
        headers NVARCHAR(MAX) NOT NULL,
        body VARBINARY(MAX) NOT NULL,
        stored_at BIGINT NOT NULL,
        CONSTRAINT pk_gateway_cache_entries PRIMARY KEY (store_name, key_hash)
    );
END`,
	}
	for _, ddl := range stmts {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("create cache tables (mssql): %w", err)
		}
	}
	if _, err := db.Exec(`IF NOT EXISTS (SELECT * FROM sys.indexes WHERE name = 'idx_gateway_cache_entries_stored_at' AND object_id = OBJECT_ID('dbo.gateway_cache_entries'))
CREATE INDEX idx_gateway_cache_entries_stored_at ON dbo.gateway_cache_entries(store_name, stored_at)`); err != nil {
		logger.GetLogger().WithField("error", err).Warn("failed creating idx_gateway_cache_entries_stored_at")
	}
	return nil
}
