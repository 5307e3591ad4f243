package migration

import (
	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	claimdomain "github.com/smallbiznis/loyalty/internal/claim/domain"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	pendingdomain "github.com/smallbiznis/loyalty/internal/pendingcredit/domain"
	profiledomain "github.com/smallbiznis/loyalty/internal/profile/domain"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
	"gorm.io/gorm"
)

// Models lists every persisted loyalty table.
func Models() []any {
	return []any{
		&ledgerdomain.LedgerEntry{},
		&balancedomain.Balance{},
		&rewarddomain.Reward{},
		&claimdomain.ClaimedReward{},
		&pendingdomain.PendingCredit{},
		&profiledomain.UserProfile{},
	}
}

// AutoMigrate builds the schema from the models for dialects without
// embedded SQL migrations.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}

// Apply picks the migration strategy for the connection's dialect.
func Apply(conn *gorm.DB) error {
	if conn.Dialector.Name() == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	return AutoMigrate(conn)
}
