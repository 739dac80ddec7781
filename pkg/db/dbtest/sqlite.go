// Package dbtest opens throwaway SQLite databases shaped like the Postgres schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  clerk_id TEXT NOT NULL UNIQUE,
  stripe_customer_id TEXT NOT NULL,
  current_subscription_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE INDEX IF NOT EXISTS idx_users_current_subscription_id ON users (current_subscription_id);`,
	`CREATE TABLE IF NOT EXISTS courses (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  price NUMERIC NOT NULL,
  image_url TEXT NOT NULL DEFAULT '',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  stripe_subscription_id TEXT NOT NULL,
  status TEXT NOT NULL,
  plan_type TEXT NOT NULL,
  current_period_start DATETIME,
  current_period_end DATETIME,
  cancel_at_period_end INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
}

// UniqueSubscriptionIndex is applied by NewSQLite unless the caller opts out
// to simulate legacy data with duplicate external ids.
const UniqueSubscriptionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS subscriptions_stripe_subscription_id_key ON subscriptions (stripe_subscription_id);`

// Option tweaks the generated schema.
type Option func(*options)

type options struct {
	skipUnique bool
}

// WithoutUniqueSubscriptionIndex leaves stripe_subscription_id unconstrained.
func WithoutUniqueSubscriptionIndex() Option {
	return func(o *options) { o.skipUnique = true }
}

// NewSQLite returns an isolated in-memory database with the service tables.
func NewSQLite(t *testing.T, opts ...Option) *gorm.DB {
	t.Helper()
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	stmts := schema
	if !cfg.skipUnique {
		stmts = append(append([]string{}, schema...), UniqueSubscriptionIndex)
	}
	for _, stmt := range stmts {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}
