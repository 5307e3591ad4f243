package db

import (
	"testing"

	"github.com/smallbiznis/loyalty/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func TestSqliteDSNQueuesWriters(t *testing.T) {
	assert.Equal(t, "loyalty.db?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("loyalty.db"))
	assert.Equal(t, "file:x.db?cache=shared&_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("file:x.db?cache=shared"))
	assert.Equal(t, "x.db?_txlock=deferred&_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("x.db?_txlock=deferred"))
}

func TestDialectSqliteUsesDefaults(t *testing.T) {
	d, err := Dialect(config.Config{DBType: "sqlite"})
	require.NoError(t, err)
	dialector, ok := d.(*sqlite.Dialector)
	require.True(t, ok)
	assert.Equal(t, sqliteDSN("loyalty.db"), dialector.DSN)

	_, err = Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}
