// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/soundmatch/internal/db"
)

var seq atomic.Int64

// Open returns a migrated in-memory database private to t.
// The pool is capped at one connection, so transactions run one at a time
// the way row locks would serialize them on MySQL/Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err, "open sqlite")

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// CreateUser inserts a minimal user and returns it.
func CreateUser(t testing.TB, database *gorm.DB, username string) *db.User {
	t.Helper()
	u := &db.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		DisplayName:  username,
		Active:       true,
	}
	require.NoError(t, database.Create(u).Error, "create user %s", username)
	return u
}

// CreateUsers inserts one user per name and returns their ids in order.
func CreateUsers(t testing.TB, database *gorm.DB, names ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(names))
	for _, n := range names {
		ids = append(ids, CreateUser(t, database, n).ID)
	}
	return ids
}
