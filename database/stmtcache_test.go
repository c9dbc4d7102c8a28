package database

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStmtCacheReuse(t *testing.T) {
	db, err := sql.Open("sqlite3", t.TempDir()+"/cache.db")
	require.NoError(t, err)
	defer db.Close()

	sc := NewStmtCache(db)
	defer sc.Clear()

	first, err := sc.Prepare("SELECT 1;")
	require.NoError(t, err)
	second, err := sc.Prepare("SELECT 1;")
	require.NoError(t, err)
	assert.Same(t, first, second)

	var n int
	require.NoError(t, first.QueryRow().Scan(&n))
	assert.Equal(t, 1, n)
}
