// Package catalog answers questions about the server itself rather than a
// single target, such as which databases can be selected.
package catalog

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const listDatabasesSQL = `SELECT datname FROM pg_database
WHERE datallowconn AND NOT datistemplate
ORDER BY datname`

type Catalog struct {
	db      *gorm.DB
	exclude map[string]struct{}
}

// Open connects to the server's maintenance database given by dsn.
func Open(dsn string, exclude ...string) (*Catalog, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	return New(db, exclude...), nil
}

func New(db *gorm.DB, exclude ...string) *Catalog {
	c := &Catalog{db: db, exclude: make(map[string]struct{}, len(exclude))}
	for _, name := range exclude {
		c.exclude[name] = struct{}{}
	}
	return c
}

// Databases lists the databases a run may target, sorted by name.
func (c *Catalog) Databases(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.db.WithContext(ctx).Raw(listDatabasesSQL).Scan(&names).Error; err != nil {
		return nil, fmt.Errorf("catalog: list databases: %w", err)
	}
	return c.filter(names), nil
}

// Ping checks that the server still answers.
func (c *Catalog) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (c *Catalog) filter(names []string) []string {
	out := slices.DeleteFunc(names, func(n string) bool {
		_, skip := c.exclude[n]
		return skip
	})
	slices.Sort(out)
	return out
}
