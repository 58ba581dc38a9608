package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"create sales table", "create_sales_table"},
		{"Create-Sales-Table", "create_sales_table"},
		{"CREATE_SALES_TABLE", "create_sales_table"},
		{"create__sales__table", "create_sales_table"},
		{"Add Sales 123", "add_sales_123"},
		{"add-sku-bindings", "add_sku_bindings"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, slugify(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	tmpDir := t.TempDir()

	mf, err := CreateMigration(tmpDir, "create sales table", "Ledger table for synced orders")
	require.NoError(t, err)
	require.NotNil(t, mf)

	// Version is a YYYYMMDDHHMMSS timestamp.
	assert.Len(t, mf.Version, 14)

	assert.True(t, strings.HasSuffix(mf.UpPath, ".up.sql"))
	assert.True(t, strings.HasSuffix(mf.DownPath, ".down.sql"))

	// Both files of the pair share a base name.
	upBase := strings.TrimSuffix(filepath.Base(mf.UpPath), ".up.sql")
	downBase := strings.TrimSuffix(filepath.Base(mf.DownPath), ".down.sql")
	assert.Equal(t, upBase, downBase)
	assert.True(t, strings.HasSuffix(upBase, "_create_sales_table"))

	upContent, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(upContent), "create sales table")
	assert.Contains(t, string(upContent), "Ledger table for synced orders")
	assert.Contains(t, string(upContent), "Write your UP migration SQL here")

	downContent, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(downContent), "Rollback")
	assert.Contains(t, string(downContent), "Write your DOWN migration SQL here")
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "migrations")

	mf, err := CreateMigration(nestedPath, "create sku versions", "")
	require.NoError(t, err)
	require.NotNil(t, mf)

	info, err := os.Stat(nestedPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func writeMigrationFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		err := os.WriteFile(filepath.Join(dir, name), []byte("-- test"), 0644)
		require.NoError(t, err)
	}
}

func TestListMigrations(t *testing.T) {
	tmpDir := t.TempDir()
	writeMigrationFiles(t, tmpDir,
		"20260810090000_create_sales.up.sql",
		"20260810090000_create_sales.down.sql",
		"20260810090500_create_sku_tables.up.sql",
		"20260810090500_create_sku_tables.down.sql",
		"20260810091000_create_platform_tokens.up.sql",
		"20260810091000_create_platform_tokens.down.sql",
	)

	migrations, err := ListMigrations(tmpDir)
	require.NoError(t, err)

	// One entry per pair, ordered by version.
	assert.Equal(t, []string{
		"20260810090000_create_sales",
		"20260810090500_create_sku_tables",
		"20260810091000_create_platform_tokens",
	}, migrations)
}

func TestListMigrations_EmptyDirectory(t *testing.T) {
	migrations, err := ListMigrations(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	migrations, err := ListMigrations("/nonexistent/path/to/migrations")
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestListMigrations_IgnoresNonMigrationFiles(t *testing.T) {
	tmpDir := t.TempDir()
	writeMigrationFiles(t, tmpDir,
		"20260810090000_create_sales.up.sql",
		"20260810090000_create_sales.down.sql",
		"README.md",
		"config.yaml",
		".gitkeep",
	)

	migrations, err := ListMigrations(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"20260810090000_create_sales"}, migrations)
}

func TestListMigrations_IgnoresDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	writeMigrationFiles(t, tmpDir,
		"20260810090000_create_sales.up.sql",
		"20260810090000_create_sales.down.sql",
	)
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "subdir.up.sql"), 0755))

	migrations, err := ListMigrations(tmpDir)
	require.NoError(t, err)
	assert.Len(t, migrations, 1)
}
