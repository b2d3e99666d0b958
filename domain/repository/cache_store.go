package repository

import (
	"context"

	"video-gateway/domain/model"
)

// ICacheStore is a set of named, isolated stores holding cached responses.
// A store is created on first Open and lives until Drop.
type ICacheStore interface {
	// Open creates the named store if absent.
	Open(ctx context.Context, name string) error
	// Names lists every existing store.
	Names(ctx context.Context) ([]string, error)
	// Drop deletes a store and all its entries. Dropping a missing store is not an error.
	Drop(ctx context.Context, name string) error
	// Match returns the entry stored under key, or nil, nil on a miss.
	Match(ctx context.Context, name, key string) (*model.CachedEntry, error)
	// Put writes entry into the named store, replacing any previous value.
	Put(ctx context.Context, name string, entry *model.CachedEntry) error
	// Count returns the number of entries in the named store.
	Count(ctx context.Context, name string) (int, error)
}

// ICacheSweeper is implemented by stores that can drop entries older than a cutoff.
type ICacheSweeper interface {
	DeleteOlderThan(ctx context.Context, name string, cutoffUnixNano int64) (int, error)
}
