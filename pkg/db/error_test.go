package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassifySerializationFailureIsConflict(t *testing.T) {
	err := Classify("claim", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}))
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.False(t, IsStorageError(err))
}

func TestClassifyWrapsOtherErrorsAsStorage(t *testing.T) {
	raw := errors.New("connection refused")
	err := Classify("ledger.append", raw)

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ledger.append", se.Op)
	assert.ErrorIs(t, err, raw)
}

func TestClassifyIsIdempotent(t *testing.T) {
	first := Classify("a", errors.New("boom"))
	assert.Same(t, first, Classify("b", first))
	assert.Nil(t, Classify("c", nil))
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: claimed_rewards.redemption_code")))
	assert.False(t, IsDuplicateKeyErr(errors.New("syntax error")))
	assert.False(t, IsDuplicateKeyErr(nil))
}
