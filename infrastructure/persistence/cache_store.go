package persistence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
)

// cacheQueries holds the dialect-specific statements used by SQLCacheStore.
type cacheQueries struct {
	openStore   string
	listStores  string
	dropEntries string
	dropStore   string
	match       string
	upsert      string
	count       string
	sweep       string
}

var postgresCacheQueries = cacheQueries{
	openStore:   `INSERT INTO gateway_cache_stores(name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
	listStores:  `SELECT name FROM gateway_cache_stores ORDER BY name`,
	dropEntries: `DELETE FROM gateway_cache_entries WHERE store_name=$1`,
	dropStore:   `DELETE FROM gateway_cache_stores WHERE name=$1`,
	match:       `SELECT cache_key, url, status_code, headers, body, stored_at FROM gateway_cache_entries WHERE store_name=$1 AND key_hash=$2`,
	upsert: `INSERT INTO gateway_cache_entries(store_name, key_hash, cache_key, url, status_code, headers, body, stored_at)
          VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
          ON CONFLICT (store_name, key_hash) DO UPDATE SET cache_key=EXCLUDED.cache_key, url=EXCLUDED.url, status_code=EXCLUDED.status_code, headers=EXCLUDED.headers, body=EXCLUDED.body, stored_at=EXCLUDED.stored_at`,
	count: `SELECT COUNT(1) FROM gateway_cache_entries WHERE store_name=$1`,
	sweep: `DELETE FROM gateway_cache_entries WHERE store_name=$1 AND stored_at < $2`,
}

var mssqlCacheQueries = cacheQueries{
	openStore: `MERGE dbo.gateway_cache_stores WITH (HOLDLOCK) AS target
USING (SELECT @p1 AS name) AS src
ON (target.name = src.name)
WHEN NOT MATCHED THEN INSERT (name) VALUES (@p1);`,
	listStores:  `SELECT name FROM dbo.gateway_cache_stores ORDER BY name`,
	dropEntries: `DELETE FROM dbo.gateway_cache_entries WHERE store_name=@p1`,
	dropStore:   `DELETE FROM dbo.gateway_cache_stores WHERE name=@p1`,
	match:       `SELECT cache_key, url, status_code, headers, body, stored_at FROM dbo.gateway_cache_entries WHERE store_name=@p1 AND key_hash=@p2`,
	upsert: `MERGE dbo.gateway_cache_entries WITH (HOLDLOCK) AS target
USING (SELECT @p1 AS store_name, @p2 AS key_hash) AS src
ON (target.store_name = src.store_name AND target.key_hash = src.key_hash)
WHEN MATCHED THEN UPDATE SET cache_key=@p3, url=@p4, status_code=@p5, headers=@p6, body=@p7, stored_at=@p8
WHEN NOT MATCHED THEN INSERT (store_name, key_hash, cache_key, url, status_code, headers, body, stored_at)
VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8);`,
	count: `SELECT COUNT(1) FROM dbo.gateway_cache_entries WHERE store_name=@p1`,
	sweep: `DELETE FROM dbo.gateway_cache_entries WHERE store_name=@p1 AND stored_at < @p2`,
}

// SQLCacheStore persists cache stores in two tables: a store registry and the entries.
// Entries are keyed by the SHA-256 of the cache key so arbitrarily long URLs fit an index.
type SQLCacheStore struct {
	db *sql.DB
	q  cacheQueries
}

var (
	_ repository.ICacheStore   = (*SQLCacheStore)(nil)
	_ repository.ICacheSweeper = (*SQLCacheStore)(nil)
)

func NewCacheStore(db *sql.DB) *SQLCacheStore {
	return &SQLCacheStore{db: db, q: postgresCacheQueries}
}

func NewCacheStoreMSSQL(db *sql.DB) *SQLCacheStore {
	return &SQLCacheStore{db: db, q: mssqlCacheQueries}
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (r *SQLCacheStore) Open(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, r.q.openStore, name)
	if isDuplicateKey(err) {
		return nil
	}
	return err
}

// isDuplicateKey reports a unique constraint violation from either driver.
// Another gateway inserting the same row first is not a failure.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == 2627 || msErr.Number == 2601
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (r *SQLCacheStore) Names(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.q.listStores)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *SQLCacheStore) Drop(ctx context.Context, name string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, r.q.dropEntries, name); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, r.q.dropStore, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLCacheStore) Match(ctx context.Context, name, key string) (*model.CachedEntry, error) {
	row := r.db.QueryRowContext(ctx, r.q.match, name, hashKey(key))
	var (
		entry    model.CachedEntry
		headers  []byte
		storedAt int64
	)
	if err := row.Scan(&entry.Key, &entry.URL, &entry.StatusCode, &headers, &entry.Body, &storedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(headers, &entry.Headers); err != nil {
		return nil, fmt.Errorf("decode cached headers: %w", err)
	}
	entry.StoredAt = time.Unix(0, storedAt).UTC()
	return &entry, nil
}

func (r *SQLCacheStore) Put(ctx context.Context, name string, entry *model.CachedEntry) (err error) {
	headers, err := json.Marshal(entry.Headers)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, r.q.openStore, name); err != nil && !isDuplicateKey(err) {
		return err
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}
	if _, err = tx.ExecContext(ctx, r.q.upsert,
		name, hashKey(entry.Key), entry.Key, entry.URL, entry.StatusCode, string(headers), body, entry.StoredAt.UnixNano(),
	); err != nil {
		if isDuplicateKey(err) {
			// a concurrent writer stored this key first
			_ = tx.Rollback()
			return nil
		}
		return err
	}
	return tx.Commit()
}

func (r *SQLCacheStore) Count(ctx context.Context, name string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, r.q.count, name).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *SQLCacheStore) DeleteOlderThan(ctx context.Context, name string, cutoffUnixNano int64) (int, error) {
	res, err := r.db.ExecContext(ctx, r.q.sweep, name, cutoffUnixNano)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
