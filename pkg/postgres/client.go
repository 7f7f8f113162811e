// Package postgres provides a lib/pq-backed database client used by the
// optional postgres record source.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fundergrid/research-service/pkg/config"
	_ "github.com/lib/pq"
)

const pingTimeout = 5 * time.Second

// Client wraps a pooled *sql.DB.
type Client struct {
	DB *sql.DB
}

// Open opens a connection pool and verifies it with a bounded ping before
// returning, closing the pool on failure.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db}, nil
}

// Ping verifies the connection, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.DB.Close()
}
