package db

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db", convertToPgx5URL("postgres://u:p@h:5432/db"))
	assert.Equal(t, "pgx5://u:p@h:5432/db", convertToPgx5URL("postgresql://u:p@h:5432/db"))
	assert.Equal(t, "pgx5://already", convertToPgx5URL("pgx5://already"))
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups[strings.TrimSuffix(e.Name(), ".up.sql")] = true
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs[strings.TrimSuffix(e.Name(), ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", e.Name())
		}
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.Equal(t, ups, downs)
}
