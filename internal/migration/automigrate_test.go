package migration

import (
	"io/fs"
	"testing"

	"github.com/smallbiznis/loyalty/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyAutoMigratesSQLite(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, Apply(conn))
	for _, table := range []string{
		"loyalty_ledger_entries",
		"loyalty_balances",
		"rewards",
		"claimed_rewards",
		"pending_credits",
		"user_profiles",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasIndex("loyalty_ledger_entries", "ux_loyalty_ledger_dedupe_key"))

	require.NoError(t, Apply(conn))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.down.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
