package migration

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

func TestNewManager(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "postgres")
	logger := observability.NewNoopLogger()

	manager, err := NewManager(db, Config{MigrationsPath: "test/migrations", Timeout: 30 * time.Second}, logger)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(manager.config.MigrationsPath))
	assert.True(t, strings.HasSuffix(manager.config.MigrationsPath, filepath.Join("test", "migrations")))
	assert.Equal(t, 30*time.Second, manager.config.Timeout)

	_, err = NewManager(nil, Config{}, logger)
	assert.Error(t, err)

	manager, err = NewManager(db, Config{}, logger)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(manager.config.MigrationsPath, filepath.FromSlash(DefaultMigrationsPath)))
	assert.Equal(t, DefaultTimeout, manager.config.Timeout)

	assert.NoError(t, manager.Close())
}

// The shipped migrations must come in matching up/down pairs.
func TestMigrationFilesArePaired(t *testing.T) {
	dir := filepath.Join("..", "..", "..", "migrations", "sql")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}

	require.NotEmpty(t, ups)
	var names []string
	for n := range ups {
		names = append(names, n)
		assert.True(t, downs[n], "missing down migration for %s", n)
	}
	assert.Len(t, downs, len(ups))
	sort.Strings(names)
	assert.True(t, strings.HasPrefix(names[0], "000001_"))
}
