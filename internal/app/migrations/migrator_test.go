package migrations

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionOf(t *testing.T) {
	assert.Equal(t, "001", VersionOf("001_init.sql"))
	assert.Equal(t, "002", VersionOf("sql/002_change_notify.sql"))
}

func TestPendingSortsSQLFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":  {Data: []byte("SELECT 1;")},
		"002_second.sql": {Data: []byte("SELECT 1;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("notes")},
		"old/003_x.sql":  {Data: []byte("SELECT 1;")},
	}

	files, err := Pending(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_first.sql", "002_second.sql", "010_later.sql"}, files)
}

func TestBundledMigrations(t *testing.T) {
	files, err := Pending(Files())
	require.NoError(t, err)
	require.Equal(t, []string{"001_init.sql", "002_change_notify.sql"}, files)

	initSQL, err := fs.ReadFile(Files(), "001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(initSQL), "registrations_student_course_key")

	notifySQL, err := fs.ReadFile(Files(), "002_change_notify.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(notifySQL), "'table_changes'"), "trigger publishes on the listener channel")
}
