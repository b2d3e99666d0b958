package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"video-gateway/infrastructure/configuration"

	_ "github.com/lib/pq"
)

func postgresDSN(cfg configuration.Db) string {
	sslMode := "disable"
	if cfg.Host != "" && cfg.Host != "localhost" && cfg.Host != "127.0.0.1" {
		sslMode = "require"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, sslMode)
}

// NewPostgreSQLDB opens the PostgreSQL cache database and verifies the connection.
func NewPostgreSQLDB(cfg configuration.Db) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
