package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-gateway/domain/model"
)

func sampleEntry() *model.CachedEntry {
	return &model.CachedEntry{
		Key:        "GET http://origin/video.mp4",
		URL:        "http://origin/video.mp4",
		StatusCode: 200,
		Headers:    map[string][]string{"Content-Type": {"video/mp4"}},
		Body:       []byte("mp4-bytes"),
		StoredAt:   time.Unix(1700000000, 0).UTC(),
	}
}

func TestCacheStore_Match(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewCacheStore(db)
	want := sampleEntry()

	mock.ExpectQuery(regexp.QuoteMeta(postgresCacheQueries.match)).
		WithArgs("v1-video", hashKey(want.Key)).
		WillReturnRows(sqlmock.NewRows([]string{"cache_key", "url", "status_code", "headers", "body", "stored_at"}).
			AddRow(want.Key, want.URL, 200, []byte(`{"Content-Type":["video/mp4"]}`), want.Body, want.StoredAt.UnixNano()))

	got, err := store.Match(context.Background(), "v1-video", want.Key)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_MatchMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(postgresCacheQueries.match)).
		WithArgs("v1-video", hashKey("GET http://origin/missing.mp4")).
		WillReturnError(sql.ErrNoRows)

	got, err := NewCacheStore(db).Match(context.Background(), "v1-video", "GET http://origin/missing.mp4")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	entry := sampleEntry()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(postgresCacheQueries.openStore)).
		WithArgs("v1-video").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(postgresCacheQueries.upsert)).
		WithArgs("v1-video", hashKey(entry.Key), entry.Key, entry.URL, 200,
			`{"Content-Type":["video/mp4"]}`, entry.Body, entry.StoredAt.UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewCacheStore(db).Put(context.Background(), "v1-video", entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_PutRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	entry := sampleEntry()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(mssqlCacheQueries.openStore)).
		WithArgs("v1-video").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(mssqlCacheQueries.upsert)).
		WillReturnError(errors.New("quota exceeded"))
	mock.ExpectRollback()

	err = NewCacheStoreMSSQL(db).Put(context.Background(), "v1-video", entry)
	require.EqualError(t, err, "quota exceeded")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_NamesDropCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewCacheStore(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(postgresCacheQueries.listStores)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("v0-video").AddRow("v1-video"))
	names, err := store.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v0-video", "v1-video"}, names)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(postgresCacheQueries.dropEntries)).WithArgs("v0-video").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta(postgresCacheQueries.dropStore)).WithArgs("v0-video").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, store.Drop(ctx, "v0-video"))

	mock.ExpectQuery(regexp.QuoteMeta(postgresCacheQueries.count)).
		WithArgs("v1-video").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	n, err := store.Count(ctx, "v1-video")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_DeleteOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Now().Add(-5 * time.Minute).UnixNano()
	mock.ExpectExec(regexp.QuoteMeta(mssqlCacheQueries.sweep)).
		WithArgs("v1-generic", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewCacheStoreMSSQL(db).DeleteOlderThan(context.Background(), "v1-generic", cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureCacheSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS gateway_cache_stores").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS gateway_cache_entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_gateway_cache_entries_stored_at").WillReturnError(errors.New("permission denied"))

	// index creation failures are non-fatal
	require.NoError(t, EnsureCacheSchema(db))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Error(t, EnsureCacheSchema(nil))
}

func TestCacheStore_ConcurrentWriterDuplicates(t *testing.T) {
	t.Run("store registry row inserted by another gateway", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(mssqlCacheQueries.openStore)).
			WithArgs("v1-video").
			WillReturnError(mssql.Error{Number: 2627, Message: "Violation of PRIMARY KEY constraint"})
		mock.ExpectExec(regexp.QuoteMeta(mssqlCacheQueries.upsert)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, NewCacheStoreMSSQL(db).Put(context.Background(), "v1-video", sampleEntry()))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("entry inserted by another gateway", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(mssqlCacheQueries.openStore)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(mssqlCacheQueries.upsert)).
			WillReturnError(mssql.Error{Number: 2601, Message: "Cannot insert duplicate key row"})
		mock.ExpectRollback()

		require.NoError(t, NewCacheStoreMSSQL(db).Put(context.Background(), "v1-video", sampleEntry()))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("open tolerates a racing insert", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(postgresCacheQueries.openStore)).
			WithArgs("v1-static").
			WillReturnError(&pq.Error{Code: "23505"})

		require.NoError(t, NewCacheStore(db).Open(context.Background(), "v1-static"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other errors still surface", func(t *testing.T) {
		assert.False(t, isDuplicateKey(errors.New("deadlock victim")))
		assert.False(t, isDuplicateKey(mssql.Error{Number: 1205}))
		assert.True(t, isDuplicateKey(fmt.Errorf("put: %w", mssql.Error{Number: 2627})))
	})
}
