package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/kiesman99/geostitch/internal/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite stores tiles in a single sqlite database file.
type SQLite struct {
	db     *sql.DB
	logger logger.Logger
}

var _ Cache = (*SQLite)(nil)

// NewSQLite opens the database at path and applies pending migrations.
func NewSQLite(path string, l logger.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	c := &SQLite{db: db, logger: l}
	if err := c.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	l.Info("sqlite cache initialized", "path", path)
	return c, nil
}

func (c *SQLite) runMigrations() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(c.db, "migrations")
}

func (c *SQLite) Get(ctx context.Context, k Key) ([]byte, bool, error) {
	c.logger.Debug("sqlite cache get", "key", k.String())

	query := `SELECT tile_data
	FROM tile_cache
	WHERE bin = ? AND z = ? AND x = ? AND y = ?`

	var data []byte
	err := c.db.QueryRowContext(ctx, query, k.Bin, k.Level, k.X, k.Y).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		c.logger.Error("sqlite cache get failed", "key", k.String(), "error", err)
		return nil, false, err
	}
	return data, true, nil
}

func (c *SQLite) Set(ctx context.Context, k Key, v []byte) error {
	c.logger.Debug("sqlite cache set", "key", k.String())

	query := `INSERT INTO tile_cache (bin, z, x, y, tile_data)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(bin, z, x, y) DO UPDATE SET tile_data = excluded.tile_data`

	if _, err := c.db.ExecContext(ctx, query, k.Bin, k.Level, k.X, k.Y, v); err != nil {
		c.logger.Error("sqlite cache set failed", "key", k.String(), "error", err)
		return err
	}
	return nil
}

func (c *SQLite) Has(ctx context.Context, k Key) (bool, error) {
	query := `SELECT 1 FROM tile_cache WHERE bin = ? AND z = ? AND x = ? AND y = ?`

	var one int
	err := c.db.QueryRowContext(ctx, query, k.Bin, k.Level, k.X, k.Y).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (c *SQLite) Close() error {
	return c.db.Close()
}
