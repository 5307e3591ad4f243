package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("  select points from loyalty_balances"))
	assert.Equal(t, "UPDATE", operationFromSQL("WITH x AS (SELECT 1) UPDATE loyalty_balances SET points = 1"))
	assert.Equal(t, "DELETE", operationFromSQL("WITH a AS (SELECT 1), b AS (SELECT (2)) DELETE FROM loyalty_pending_credits"))
	assert.Equal(t, "SELECT", operationFromSQL("WITH RECURSIVE x(n) AS (SELECT 1) SELECT n FROM x"))
	assert.Equal(t, "INSERT", operationFromSQL("with x as (select 1) insert into ledger_entries select * from x"))
	assert.Equal(t, "OTHER", operationFromSQL("WITH x AS (SELECT 1)"))
	assert.Equal(t, "OTHER", operationFromSQL("SAVEPOINT sp1"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestGormLoggerLogModeReturnsCopy(t *testing.T) {
	base := NewGormLogger(DefaultGormLoggerConfig())
	silent := base.LogMode(gormlogger.Silent).(*GormLogger)

	assert.Equal(t, gormlogger.Silent, silent.cfg.Level)
	assert.Equal(t, gormlogger.Warn, base.cfg.Level)
}
