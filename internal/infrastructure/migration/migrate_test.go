package migration

import (
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/groupbuy/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	source := fstest.MapFS{
		"000002_second.up.sql":   {Data: []byte("SELECT 1;")},
		"000002_second.down.sql": {Data: []byte("SELECT 1;")},
		"000001_first.up.sql":    {Data: []byte("SELECT 1;")},
		"000001_first.down.sql":  {Data: []byte("SELECT 1;")},
		"README.md":              {Data: []byte("notes")},
	}

	names, err := List(source)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_first", "000002_second"}, names)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := List(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, names)

	for i, name := range names {
		down, err := fs.ReadFile(migrations.FS, name+".down.sql")
		require.NoError(t, err, "missing down migration for %s", name)
		assert.NotEmpty(t, strings.TrimSpace(string(down)))

		// versions are contiguous so golang-migrate steps cleanly
		assert.True(t, strings.HasPrefix(name, fmt.Sprintf("%06d_", i+1)), "unexpected version for %s", name)
	}
}

func TestEmbeddedMigrationsCreateTables(t *testing.T) {
	var all strings.Builder
	names, err := List(migrations.FS)
	require.NoError(t, err)
	for _, name := range names {
		up, err := fs.ReadFile(migrations.FS, name+".up.sql")
		require.NoError(t, err)
		all.Write(up)
	}

	for _, table := range []string{
		"products",
		"group_orders",
		"group_order_participants",
		"group_order_reminders",
		"group_order_chat_messages",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
